package provider

import (
	"fmt"
	"net/http"
	"slices"
	"sync"

	"chatdesk/config"
	"chatdesk/model"
)

// ChatServiceFactory maps provider ids to chat adapters.
//
// Adapters are stateless: credentials travel in model.ChatOptions on every
// call, so one instance per vendor serves every conversation.
type ChatServiceFactory struct {
	mu       sync.RWMutex
	services map[string]model.ChatService
}

func NewChatServiceFactory() *ChatServiceFactory {
	return &ChatServiceFactory{services: make(map[string]model.ChatService)}
}

// NewDefaultChatServiceFactory registers an adapter for every catalog vendor.
// A nil httpClient uses http.DefaultClient.
func NewDefaultChatServiceFactory(httpClient *http.Client) *ChatServiceFactory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	f := NewChatServiceFactory()
	f.Register(NewAnthropicChatService(httpClient))
	f.Register(NewOpenAIChatService(httpClient))
	f.Register(NewOpenRouterChatService(httpClient))
	f.Register(NewDeepSeekChatService(httpClient))
	f.Register(NewOllamaChatService(httpClient))
	return f
}

// Register adds or replaces the adapter for svc.ProviderID().
func (f *ChatServiceFactory) Register(svc model.ChatService) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[svc.ProviderID()] = svc

	if config.Debug {
		config.DebugLog.Debugf("[Provider] Registered chat service: %s", svc.ProviderID())
	}
}

// Get returns the adapter for id, or *model.UnsupportedProviderError.
func (f *ChatServiceFactory) Get(id string) (model.ChatService, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	svc, ok := f.services[id]
	if !ok {
		return nil, &model.UnsupportedProviderError{ProviderID: id}
	}
	return svc, nil
}

func (f *ChatServiceFactory) SupportsProvider(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.services[id]
	return ok
}

// Providers returns the registered ids, sorted.
func (f *ChatServiceFactory) Providers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.services)
}

// Validate checks that every catalog vendor has an adapter. It is run once at
// startup so a missing registration fails fast instead of on first send.
func (f *ChatServiceFactory) Validate(catalog []model.ProviderInfo) error {
	var missing []string
	for _, p := range catalog {
		if !f.SupportsProvider(p.ID) {
			missing = append(missing, p.ID)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no chat service registered for providers: %v", missing)
	}
	return nil
}

// ModelServiceFactory maps provider ids to model-listing services. A vendor
// without one falls back to its preset models.
type ModelServiceFactory struct {
	mu       sync.RWMutex
	services map[string]model.ModelService
}

func NewModelServiceFactory() *ModelServiceFactory {
	return &ModelServiceFactory{services: make(map[string]model.ModelService)}
}

// NewDefaultModelServiceFactory registers a model service for every vendor
// that exposes a models endpoint.
func NewDefaultModelServiceFactory(httpClient *http.Client) *ModelServiceFactory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	f := NewModelServiceFactory()
	f.Register(NewAnthropicModelService(httpClient))
	f.Register(NewCompatibleModelService(IDOpenAI, httpClient))
	f.Register(NewCompatibleModelService(IDOpenRouter, httpClient))
	f.Register(NewCompatibleModelService(IDDeepSeek, httpClient))
	f.Register(NewOllamaModelService(httpClient))
	return f
}

func (f *ModelServiceFactory) Register(svc model.ModelService) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[svc.ProviderID()] = svc
}

func (f *ModelServiceFactory) Get(id string) (model.ModelService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	svc, ok := f.services[id]
	return svc, ok
}

func (f *ModelServiceFactory) SupportsProvider(id string) bool {
	_, ok := f.Get(id)
	return ok
}

func (f *ModelServiceFactory) Providers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sortedKeys(f.services)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
