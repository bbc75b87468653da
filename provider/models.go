package provider

import (
	"context"
	"net/http"

	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/ollama"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// anthropicModelPageSize is the page size requested from the models endpoint.
const anthropicModelPageSize = 100

// AnthropicModelService lists models from the Anthropic Models API.
type AnthropicModelService struct {
	httpClient *http.Client
}

func NewAnthropicModelService(httpClient *http.Client) *AnthropicModelService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AnthropicModelService{httpClient: httpClient}
}

func (s *AnthropicModelService) ProviderID() string { return IDAnthropic }

func (s *AnthropicModelService) FetchModels(ctx context.Context, apiKey, baseURL string) []model.ModelInfo {
	if apiKey == "" {
		return []model.ModelInfo{}
	}

	client := anthropic.NewClient(
		anthropicoption.WithBaseURL(resolveBaseURL(IDAnthropic, baseURL)),
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithHTTPClient(s.httpClient),
		anthropicoption.WithMaxRetries(0),
	)
	page, err := client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(anthropicModelPageSize)})
	if err != nil {
		if config.Debug {
			config.DebugLog.Debugf("[Models] anthropic list failed (key %s): %v", model.MaskAPIKey(apiKey), err)
		}
		return []model.ModelInfo{}
	}

	models := make([]model.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		name := m.DisplayName
		if name == "" {
			name = m.ID
		}
		models = append(models, model.ModelInfo{ID: m.ID, Name: name})
	}
	return models
}

func (s *AnthropicModelService) TestConnection(ctx context.Context, apiKey, baseURL string) bool {
	return NewAnthropicChatService(s.httpClient).TestConnection(ctx, apiKey, baseURL)
}

// CompatibleModelService lists models from any vendor exposing the OpenAI
// GET /models endpoint (OpenAI, OpenRouter, DeepSeek).
type CompatibleModelService struct {
	id         string
	httpClient *http.Client
}

func NewCompatibleModelService(id string, httpClient *http.Client) *CompatibleModelService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CompatibleModelService{id: id, httpClient: httpClient}
}

func (s *CompatibleModelService) ProviderID() string { return s.id }

func (s *CompatibleModelService) FetchModels(ctx context.Context, apiKey, baseURL string) []model.ModelInfo {
	if apiKey == "" {
		return []model.ModelInfo{}
	}

	ids, err := listCompatibleModels(ctx, s.httpClient, s.id, apiKey, baseURL)
	if err != nil {
		if config.Debug {
			config.DebugLog.Debugf("[Models] %s list failed (key %s): %v", s.id, model.MaskAPIKey(apiKey), err)
		}
		return []model.ModelInfo{}
	}

	models := make([]model.ModelInfo, len(ids))
	for i, id := range ids {
		models[i] = model.ModelInfo{ID: id, Name: id}
	}
	return models
}

func (s *CompatibleModelService) TestConnection(ctx context.Context, apiKey, baseURL string) bool {
	return openAICompatiblePing(ctx, s.httpClient, s.id, apiKey, baseURL)
}

func listCompatibleModels(ctx context.Context, httpClient *http.Client, providerID, apiKey, baseURL string) ([]string, error) {
	client := openai.NewClient(
		option.WithBaseURL(resolveBaseURL(providerID, baseURL)),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, requestError(providerID, err)
	}

	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// openAICompatiblePing reports whether GET /models accepts the key.
func openAICompatiblePing(ctx context.Context, httpClient *http.Client, providerID, apiKey, baseURL string) bool {
	if apiKey == "" {
		return false
	}
	if _, err := listCompatibleModels(ctx, httpClient, providerID, apiKey, baseURL); err != nil {
		if config.Debug {
			config.DebugLog.Debugf("[Provider] %s connection test failed (key %s): %v", providerID, model.MaskAPIKey(apiKey), err)
		}
		return false
	}
	return true
}

// OllamaModelService lists locally installed Ollama models.
type OllamaModelService struct {
	httpClient *http.Client
}

func NewOllamaModelService(httpClient *http.Client) *OllamaModelService {
	return &OllamaModelService{httpClient: httpClient}
}

func (s *OllamaModelService) ProviderID() string { return IDOllama }

func (s *OllamaModelService) FetchModels(ctx context.Context, apiKey, baseURL string) []model.ModelInfo {
	client, err := ollama.NewClient(resolveBaseURL(IDOllama, baseURL), s.httpClient)
	if err != nil {
		return []model.ModelInfo{}
	}

	names, err := client.ListModels(ctx)
	if err != nil {
		if config.Debug {
			config.DebugLog.Debugf("[Models] ollama list failed: %v", err)
		}
		return []model.ModelInfo{}
	}

	models := make([]model.ModelInfo, len(names))
	for i, name := range names {
		models[i] = model.ModelInfo{ID: name, Name: name}
	}
	return models
}

func (s *OllamaModelService) TestConnection(ctx context.Context, apiKey, baseURL string) bool {
	return NewOllamaChatService(s.httpClient).TestConnection(ctx, apiKey, baseURL)
}

// ResolveModels picks the model list shown for a configured provider: the
// live list when the vendor has a model service and it returns something,
// then the user's custom models, then the catalog presets. live reports
// whether the vendor answered.
func ResolveModels(ctx context.Context, factory *ModelServiceFactory, cp model.ConfiguredProvider) (models []model.ModelInfo, live bool) {
	if svc, ok := factory.Get(cp.ProviderID); ok {
		if fetched := svc.FetchModels(ctx, cp.APIKey, cp.BaseURL); len(fetched) > 0 {
			return fetched, true
		}
	}
	if len(cp.CustomModels) > 0 {
		return cp.CustomModels, false
	}
	return PresetModels(cp.ProviderID), false
}
