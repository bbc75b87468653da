package model

import (
	"fmt"
)

// ConfigurationError means a request cannot be made because the user has not
// finished setting up a provider or model.
type ConfigurationError struct {
	ProviderID string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.ProviderID == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error for %s: %s", e.ProviderID, e.Reason)
}

// ConfigurationError reasons the front end knows how to explain.
const (
	ReasonNoProvider    = "no provider selected"
	ReasonNotConfigured = "provider is not configured"
	ReasonInactive      = "provider is not active"
	ReasonMissingAPIKey = "API key is required"
	ReasonNoModel       = "no model selected"
)

// UnsupportedProviderError means no chat service is registered for the id.
type UnsupportedProviderError struct {
	ProviderID string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider: %q", e.ProviderID)
}

// ProviderRequestError is a non-success response from a vendor.
type ProviderRequestError struct {
	ProviderID string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderRequestError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed (HTTP %d): %s", e.ProviderID, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s request failed: %s", e.ProviderID, msg)
}

func (e *ProviderRequestError) Unwrap() error { return e.Err }

// StreamTransportError is a failure after a stream has started: a broken
// connection, an in-band error frame, or an undecodable event.
type StreamTransportError struct {
	ProviderID string
	Err        error
}

func (e *StreamTransportError) Error() string {
	return fmt.Sprintf("%s stream error: %v", e.ProviderID, e.Err)
}

func (e *StreamTransportError) Unwrap() error { return e.Err }
