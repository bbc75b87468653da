package provider

import (
	"context"
	"errors"

	"chatdesk/model"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// requestError converts a failure from a non-streaming call into a
// *model.ProviderRequestError, keeping the vendor's status code when the SDK
// exposes one. Context cancellation and configuration errors pass through
// untouched.
func requestError(providerID string, err error) error {
	if err == nil || isCanceled(err) || isConfigError(err) {
		return err
	}

	var reqErr *model.ProviderRequestError
	if errors.As(err, &reqErr) {
		return err
	}

	out := &model.ProviderRequestError{ProviderID: providerID, Err: err}

	var anthropicErr *anthropic.Error
	var openaiErr *openai.Error
	var ollamaErr api.StatusError
	switch {
	case errors.As(err, &anthropicErr):
		out.StatusCode = anthropicErr.StatusCode
	case errors.As(err, &openaiErr):
		out.StatusCode = openaiErr.StatusCode
		out.Message = openaiErr.Message
	case errors.As(err, &ollamaErr):
		out.StatusCode = ollamaErr.StatusCode
		out.Message = ollamaErr.ErrorMessage
	}
	return out
}

// streamError wraps a mid-stream failure as a *model.StreamTransportError.
// Vendor rejections that arrive before any event (bad key, unknown model)
// keep their ProviderRequestError form inside it. A request that could not
// be built at all fails with its configuration error as is.
func streamError(providerID string, err error) error {
	var transportErr *model.StreamTransportError
	if errors.As(err, &transportErr) || isConfigError(err) {
		return err
	}
	return &model.StreamTransportError{ProviderID: providerID, Err: requestError(providerID, err)}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// isConfigError reports a failure found before any network call.
func isConfigError(err error) bool {
	var cfgErr *model.ConfigurationError
	var unsupported *model.UnsupportedProviderError
	return errors.As(err, &cfgErr) || errors.As(err, &unsupported)
}
