package store

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/provider"
	"chatdesk/storage"
)

var (
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrProviderInactive      = errors.New("provider is not active")
)

// SecretSealer protects API keys at rest. config.EncryptionManager
// implements it.
type SecretSealer interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// ProviderStore owns the configured providers and the default selection.
// Keys are held in plaintext in memory and sealed on every save.
type ProviderStore struct {
	notifier

	mu      sync.RWMutex
	backend storage.Store
	sealer  SecretSealer
	doc     storage.ProviderDocument
}

// NewProviderStore loads the provider document, opening sealed keys with
// sealer. A nil sealer stores keys as given.
func NewProviderStore(backend storage.Store, sealer SecretSealer) (*ProviderStore, error) {
	doc, err := storage.LoadOrDefault(backend, storage.KeyProviders, storage.DefaultProviderDocument())
	if err != nil {
		return nil, fmt.Errorf("failed to load providers: %w", err)
	}

	s := &ProviderStore{backend: backend, sealer: sealer, doc: doc}
	for i := range s.doc.ConfiguredProviders {
		cp := &s.doc.ConfiguredProviders[i]
		key, err := s.open(cp.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to open API key for %s: %w", cp.ProviderID, err)
		}
		cp.APIKey = key
	}
	return s, nil
}

func (s *ProviderStore) open(stored string) (string, error) {
	if s.sealer == nil || stored == "" {
		return stored, nil
	}
	return s.sealer.Open(stored)
}

// save must be called with s.mu held.
func (s *ProviderStore) save() error {
	out := s.doc
	out.ConfiguredProviders = slices.Clone(s.doc.ConfiguredProviders)
	if s.sealer != nil {
		for i := range out.ConfiguredProviders {
			if out.ConfiguredProviders[i].APIKey == "" {
				continue
			}
			sealed, err := s.sealer.Seal(out.ConfiguredProviders[i].APIKey)
			if err != nil {
				return fmt.Errorf("failed to seal API key for %s: %w", out.ConfiguredProviders[i].ProviderID, err)
			}
			out.ConfiguredProviders[i].APIKey = sealed
		}
	}
	if err := s.backend.Save(storage.KeyProviders, out); err != nil {
		return fmt.Errorf("failed to save providers: %w", err)
	}
	return nil
}

// mutate applies fn and saves. On any failure the document is rolled back
// to what is on disk.
func (s *ProviderStore) mutate(fn func() error) error {
	s.mu.Lock()
	prev := cloneProviderDocument(s.doc)
	err := fn()
	if err == nil {
		err = s.save()
		if err != nil && config.Debug {
			config.DebugLog.Errorf("[Store] %v", err)
		}
	}
	if err != nil {
		s.doc = prev
	}
	s.mu.Unlock()

	if err == nil {
		s.notify()
	}
	return err
}

func (s *ProviderStore) index(id string) int {
	return slices.IndexFunc(s.doc.ConfiguredProviders, func(cp model.ConfiguredProvider) bool {
		return cp.ProviderID == id
	})
}

// Upsert adds or replaces a provider's configuration. The provider must be
// in the registry catalog.
func (s *ProviderStore) Upsert(cp model.ConfiguredProvider) error {
	if _, ok := provider.Lookup(cp.ProviderID); !ok {
		return &model.UnsupportedProviderError{ProviderID: cp.ProviderID}
	}
	cp.APIKey = strings.TrimSpace(cp.APIKey)
	cp.BaseURL = strings.TrimSpace(cp.BaseURL)
	cp.CustomModels = slices.Clone(cp.CustomModels)

	err := s.mutate(func() error {
		if i := s.index(cp.ProviderID); i >= 0 {
			s.doc.ConfiguredProviders[i] = cp
		} else {
			s.doc.ConfiguredProviders = append(s.doc.ConfiguredProviders, cp)
		}
		if !cp.IsActive {
			s.clearDefaultFor(cp.ProviderID)
		}
		return nil
	})
	if err == nil && config.Debug {
		config.DebugLog.Debugf("[Store] configured provider %s (key %s, active %v)",
			cp.ProviderID, model.MaskAPIKey(cp.APIKey), cp.IsActive)
	}
	return err
}

// Remove forgets a provider. If it was the default, the default is cleared.
func (s *ProviderStore) Remove(id string) error {
	return s.mutate(func() error {
		i := s.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrProviderNotConfigured, id)
		}
		s.doc.ConfiguredProviders = slices.Delete(s.doc.ConfiguredProviders, i, i+1)
		s.clearDefaultFor(id)
		return nil
	})
}

// clearDefaultFor must be called with s.mu held.
func (s *ProviderStore) clearDefaultFor(id string) {
	if s.doc.DefaultProviderID != nil && *s.doc.DefaultProviderID == id {
		s.doc.DefaultProviderID = nil
		s.doc.DefaultModelID = nil
	}
}

func (s *ProviderStore) Get(id string) (model.ConfiguredProvider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.index(id)
	if i < 0 {
		return model.ConfiguredProvider{}, false
	}
	return cloneProvider(s.doc.ConfiguredProviders[i]), true
}

// List returns every configured provider ordered by id.
func (s *ProviderStore) List() []model.ConfiguredProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ConfiguredProvider, 0, len(s.doc.ConfiguredProviders))
	for _, cp := range s.doc.ConfiguredProviders {
		out = append(out, cloneProvider(cp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// Active returns the providers that are switched on.
func (s *ProviderStore) Active() []model.ConfiguredProvider {
	all := s.List()
	return slices.DeleteFunc(all, func(cp model.ConfiguredProvider) bool { return !cp.IsActive })
}

// SetActive switches a provider on or off. Switching off the default
// provider clears the default.
func (s *ProviderStore) SetActive(id string, active bool) error {
	return s.mutate(func() error {
		i := s.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrProviderNotConfigured, id)
		}
		s.doc.ConfiguredProviders[i].IsActive = active
		if !active {
			s.clearDefaultFor(id)
		}
		return nil
	})
}

func (s *ProviderStore) SetCustomModels(id string, models []model.ModelInfo) error {
	return s.mutate(func() error {
		i := s.index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrProviderNotConfigured, id)
		}
		s.doc.ConfiguredProviders[i].CustomModels = slices.Clone(models)
		return nil
	})
}

// SetDefault selects the provider and model new conversations start with.
// Only a configured, active provider can be the default.
func (s *ProviderStore) SetDefault(providerID, modelID string) error {
	if modelID == "" {
		return &model.ConfigurationError{ProviderID: providerID, Reason: model.ReasonNoModel}
	}
	return s.mutate(func() error {
		i := s.index(providerID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrProviderNotConfigured, providerID)
		}
		if !s.doc.ConfiguredProviders[i].IsActive {
			return fmt.Errorf("%w: %s", ErrProviderInactive, providerID)
		}
		s.doc.DefaultProviderID = &providerID
		s.doc.DefaultModelID = &modelID
		return nil
	})
}

// Defaults returns the default selection, empty when none is set.
func (s *ProviderStore) Defaults() model.ProviderSelection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sel model.ProviderSelection
	if s.doc.DefaultProviderID != nil {
		sel.ProviderID = *s.doc.DefaultProviderID
	}
	if s.doc.DefaultModelID != nil {
		sel.ModelID = *s.doc.DefaultModelID
	}
	return sel
}

// MaskedKey returns the provider's key in a form safe to display or log.
func (s *ProviderStore) MaskedKey(id string) string {
	cp, ok := s.Get(id)
	if !ok {
		return ""
	}
	return model.MaskAPIKey(cp.APIKey)
}

// SeedFromEnv configures providers from environment-supplied keys. Providers
// that are already configured are left alone so a stored key always wins.
// It returns the ids that were seeded.
func (s *ProviderStore) SeedFromEnv(keys map[string]string) ([]string, error) {
	var seeded []string
	for _, id := range sortedKeys(keys) {
		if _, ok := s.Get(id); ok {
			continue
		}
		err := s.Upsert(model.ConfiguredProvider{ProviderID: id, APIKey: keys[id], IsActive: true})
		if err != nil {
			return seeded, err
		}
		seeded = append(seeded, id)
	}
	return seeded, nil
}

func cloneProvider(cp model.ConfiguredProvider) model.ConfiguredProvider {
	cp.CustomModels = slices.Clone(cp.CustomModels)
	return cp
}

func cloneProviderDocument(doc storage.ProviderDocument) storage.ProviderDocument {
	doc.ConfiguredProviders = slices.Clone(doc.ConfiguredProviders)
	for i := range doc.ConfiguredProviders {
		doc.ConfiguredProviders[i] = cloneProvider(doc.ConfiguredProviders[i])
	}
	return doc
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
