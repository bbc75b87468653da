package chat

import (
	"context"
	"fmt"

	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/provider"
	"chatdesk/store"
)

// TestProvider checks the stored credentials of a provider against the
// vendor. Providers that need no key can be tested without being configured.
func (o *Orchestrator) TestProvider(ctx context.Context, providerID string) (bool, error) {
	svc, err := o.chatServices.Get(providerID)
	if err != nil {
		return false, err
	}

	info, _ := provider.Lookup(providerID)
	cp, ok := o.providers.Get(providerID)
	if !ok && info.APIKeyRequired {
		return false, fmt.Errorf("%w: %s", store.ErrProviderNotConfigured, providerID)
	}

	connected := svc.TestConnection(ctx, cp.APIKey, cp.BaseURL)
	if config.Debug {
		config.DebugLog.Infof("[Chat] connection test for %s (key %s): %v",
			providerID, model.MaskAPIKey(cp.APIKey), connected)
	}
	return connected, nil
}

// TestCredentials checks a key before it is saved.
func (o *Orchestrator) TestCredentials(ctx context.Context, providerID, apiKey, baseURL string) (bool, error) {
	svc, err := o.chatServices.Get(providerID)
	if err != nil {
		return false, err
	}
	return svc.TestConnection(ctx, apiKey, baseURL), nil
}

// RefreshModels lists the models a provider offers: the live list when the
// vendor answers, else the user's custom models, else the catalog presets.
// A live list for a configured provider is saved as its custom models, so it
// survives the next time the vendor cannot be reached.
func (o *Orchestrator) RefreshModels(ctx context.Context, providerID string) ([]model.ModelInfo, error) {
	if _, ok := provider.Lookup(providerID); !ok {
		return nil, &model.UnsupportedProviderError{ProviderID: providerID}
	}

	cp, configured := o.providers.Get(providerID)
	if !configured {
		cp = model.ConfiguredProvider{ProviderID: providerID}
	}
	models, live := provider.ResolveModels(ctx, o.modelServices, cp)
	if live && configured {
		if err := o.providers.SetCustomModels(providerID, models); err != nil && config.Debug {
			config.DebugLog.Warnf("[Chat] could not save models for %s: %v", providerID, err)
		}
	}

	if config.Debug {
		config.DebugLog.Debugf("[Chat] %d models for %s", len(models), providerID)
	}
	return models, nil
}
