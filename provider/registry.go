package provider

import (
	"slices"

	"chatdesk/model"
)

// Provider ids known to the catalog.
const (
	IDAnthropic  = "anthropic"
	IDOpenAI     = "openai"
	IDOpenRouter = "openrouter"
	IDDeepSeek   = "deepseek"
	IDOllama     = "ollama"
)

var catalog = []model.ProviderInfo{
	{
		ID:             IDAnthropic,
		Name:           "Anthropic",
		BaseURL:        "https://api.anthropic.com",
		APIKeyRequired: true,
		Models: []model.ModelInfo{
			{ID: "claude-sonnet-4-5-20250929", Name: "Claude Sonnet 4.5", MaxTokens: 64000},
			{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", MaxTokens: 8192},
			{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", MaxTokens: 4096},
			{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", MaxTokens: 4096},
		},
	},
	{
		ID:             IDOpenAI,
		Name:           "OpenAI",
		BaseURL:        "https://api.openai.com/v1",
		APIKeyRequired: true,
		Models: []model.ModelInfo{
			{ID: "gpt-4o", Name: "GPT-4o", MaxTokens: 16384},
			{ID: "gpt-4o-mini", Name: "GPT-4o mini", MaxTokens: 16384},
			{ID: "gpt-4.1", Name: "GPT-4.1", MaxTokens: 32768},
		},
	},
	{
		ID:             IDOpenRouter,
		Name:           "OpenRouter",
		BaseURL:        "https://openrouter.ai/api/v1",
		APIKeyRequired: true,
		Models: []model.ModelInfo{
			{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", MaxTokens: 8192},
			{ID: "meta-llama/llama-3.1-70b-instruct", Name: "Llama 3.1 70B Instruct", MaxTokens: 4096},
			{ID: "qwen/qwen3-coder:free", Name: "Qwen3 Coder (free)", MaxTokens: 4096},
		},
	},
	{
		ID:             IDDeepSeek,
		Name:           "DeepSeek",
		BaseURL:        "https://api.deepseek.com/v1",
		APIKeyRequired: true,
		Models: []model.ModelInfo{
			{ID: "deepseek-chat", Name: "DeepSeek Chat", MaxTokens: 8192},
			{ID: "deepseek-reasoner", Name: "DeepSeek Reasoner", MaxTokens: 8192},
		},
	},
	{
		ID:             IDOllama,
		Name:           "Ollama",
		BaseURL:        "http://localhost:11434",
		APIKeyRequired: false,
		Models: []model.ModelInfo{
			{ID: "llama3.1:latest", Name: "llama3.1:latest"},
			{ID: "qwen2.5-coder:latest", Name: "qwen2.5-coder:latest"},
		},
	},
}

// Catalog returns a copy of every known vendor.
func Catalog() []model.ProviderInfo {
	out := make([]model.ProviderInfo, len(catalog))
	for i, p := range catalog {
		p.Models = slices.Clone(p.Models)
		out[i] = p
	}
	return out
}

// Lookup finds a vendor by id.
func Lookup(id string) (model.ProviderInfo, bool) {
	for _, p := range catalog {
		if p.ID == id {
			p.Models = slices.Clone(p.Models)
			return p, true
		}
	}
	return model.ProviderInfo{}, false
}

// PresetModels returns the static model list for a vendor, or nil.
func PresetModels(id string) []model.ModelInfo {
	p, ok := Lookup(id)
	if !ok {
		return nil
	}
	return p.Models
}

// DefaultBaseURL returns the catalog base URL for a vendor, or "".
func DefaultBaseURL(id string) string {
	p, _ := Lookup(id)
	return p.BaseURL
}

// DisplayName returns the vendor's human-readable name, falling back to the id.
func DisplayName(id string) string {
	if p, ok := Lookup(id); ok {
		return p.Name
	}
	return id
}
