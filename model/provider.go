package model

import (
	"context"
	"iter"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ChatService adapts one vendor's wire protocol to chatdesk's provider-agnostic
// message types.
//
// This interface is defined in the model package (not provider package) to avoid
// import cycles: provider implementations import model, and the store and
// orchestrator use ChatService without importing the provider package.
type ChatService interface {
	// ProviderID returns the registry id this service serves.
	ProviderID() string

	// SendMessage performs a single non-streaming request.
	SendMessage(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error)

	// StreamMessage starts a streaming request and yields events lazily.
	// Cancelling ctx aborts the underlying transport; the sequence then ends
	// without a terminal event.
	StreamMessage(ctx context.Context, messages []Message, opts ChatOptions) iter.Seq[StreamEvent]

	// TestConnection checks the vendor with the given credentials. It never fails
	// loudly: any error yields false.
	TestConnection(ctx context.Context, apiKey, baseURL string) bool
}

// ModelService lists a vendor's live models.
type ModelService interface {
	ProviderID() string

	// FetchModels returns the live model list, or an empty list on any failure.
	FetchModels(ctx context.Context, apiKey, baseURL string) []ModelInfo

	// TestConnection reports whether the credentials are accepted.
	TestConnection(ctx context.Context, apiKey, baseURL string) bool
}

// ChatOptions carries everything a ChatService needs for one request.
type ChatOptions struct {
	Model        string
	APIKey       string
	BaseURL      string
	SystemPrompt string
	MaxTurns     int
	Temperature  *float64
	MaxTokens    int
	TopP         *float64

	// Tools offered to the model, in MCP schema form.
	Tools []mcptypes.Tool
	// ToolResults answer tool calls from the previous assistant turn.
	ToolResults []ToolResult
}

// ChatResponse is the outcome of a non-streaming request.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	ModelID   string
	Usage     Usage
}

// Usage reports token accounting when the vendor provides it.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// ModelInfo describes a model offered by a provider.
type ModelInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

// ProviderInfo is a static catalog entry for a vendor.
type ProviderInfo struct {
	ID             string
	Name           string
	BaseURL        string
	APIKeyRequired bool
	Models         []ModelInfo
}

// ConfiguredProvider is the user's credentials and preferences for one vendor.
type ConfiguredProvider struct {
	ProviderID   string      `json:"providerId"`
	APIKey       string      `json:"apiKey"`
	BaseURL      string      `json:"baseUrl,omitempty"`
	IsActive     bool        `json:"isActive"`
	CustomModels []ModelInfo `json:"customModels,omitempty"`
}

// ProviderSelection names the provider/model pair a new conversation starts with.
type ProviderSelection struct {
	ProviderID string
	ModelID    string
}

// Empty reports whether no selection was made.
func (s ProviderSelection) Empty() bool {
	return s.ProviderID == "" || s.ModelID == ""
}

// MaskAPIKey hides all but the first and last four characters of a key.
// Keys shorter than eight characters are masked completely.
func MaskAPIKey(key string) string {
	const mask = "****"
	r := []rune(key)
	switch {
	case len(r) == 0:
		return ""
	case len(r) < 8:
		return mask
	default:
		return string(r[:4]) + mask + string(r[len(r)-4:])
	}
}
