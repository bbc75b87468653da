package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"chatdesk/chat"
	"chatdesk/config"
	"chatdesk/metrics"
	"chatdesk/model"
	"chatdesk/provider"
	"chatdesk/storage"
	"chatdesk/store"
	"chatdesk/ui"
)

const (
	Version = "v0.01.00"
	License = "Apache-2.0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize debug logging after config is loaded
	config.InitDebugLog(cfg.DataDir())
	defer func() { _ = config.DebugLog.Sync() }()

	backend, err := storage.Open(cfg.StorageBackend, cfg.DataDir())
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.StorageBackend, err)
	}
	defer func() {
		if err := backend.Close(); err != nil && config.Debug {
			config.DebugLog.Warnf("Warning: failed to close storage: %v", err)
		}
	}()

	sealer := config.NewEncryptionManager(config.EncryptionMethod(cfg.Security.Method), cfg.Security.SSHKeyPath)
	if pass := os.Getenv("CHATDESK_SSH_PASSPHRASE"); pass != "" {
		sealer.SetPassphrase(pass)
	}
	if err := sealer.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize key encryption: %w", err)
	}

	chats, err := store.NewChatStore(backend)
	if err != nil {
		return fmt.Errorf("failed to load conversations: %w", err)
	}
	providers, err := store.NewProviderStore(backend, sealer)
	if err != nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}
	appState, err := store.NewAppStore(backend)
	if err != nil {
		return fmt.Errorf("failed to load app state: %w", err)
	}
	// The auth document is loaded so a damaged file surfaces at startup;
	// nothing in the terminal front end signs in yet.
	if _, err := store.NewAuthStore(backend); err != nil {
		return fmt.Errorf("failed to load auth state: %w", err)
	}

	chatServices := provider.NewDefaultChatServiceFactory(nil)
	if err := chatServices.Validate(provider.Catalog()); err != nil {
		return err
	}
	modelServices := provider.NewDefaultModelServiceFactory(nil)

	if err := applyStartupConfig(cfg, chats, providers); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.MetricsListen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsListen); err != nil && config.Debug {
				config.DebugLog.Errorf("[Metrics] listener stopped: %v", err)
			}
		}()
	}

	orch := chat.New(chats, providers, chatServices, modelServices)
	app := ui.NewApp(ui.Deps{
		Orchestrator: orch,
		Chats:        chats,
		Providers:    providers,
		AppState:     appState,
		Version:      Version,
	})

	p := tea.NewProgram(app, tea.WithAltScreen())

	// Stores notify synchronously, often from inside Update; sending from the
	// event loop itself would block it.
	changed := func() { go p.Send(ui.StoreChangedMsg{}) }
	defer chats.Subscribe(changed)()
	defer providers.Subscribe(changed)()
	defer appState.Subscribe(changed)()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running chatdesk: %w", err)
	}
	orch.Abort()
	return nil
}

// applyStartupConfig seeds provider keys from the environment and applies
// the configured defaults where the user has not chosen anything yet.
func applyStartupConfig(cfg *config.Config, chats *store.ChatStore, providers *store.ProviderStore) error {
	seeded, err := providers.SeedFromEnv(cfg.EnvAPIKeys)
	if err != nil {
		return fmt.Errorf("failed to seed providers from environment: %w", err)
	}
	if config.Debug && len(seeded) > 0 {
		config.DebugLog.Infof("Seeded providers from environment: %v", seeded)
	}

	d := cfg.Defaults
	if providers.Defaults().Empty() && d.Provider != "" && d.Model != "" {
		if err := providers.SetDefault(d.Provider, d.Model); err != nil && config.Debug {
			config.DebugLog.Warnf("Warning: configured default %s/%s not applied: %v", d.Provider, d.Model, err)
		}
	}
	if providers.Defaults().Empty() {
		for _, id := range seeded {
			if presets := provider.PresetModels(id); len(presets) > 0 {
				if err := providers.SetDefault(id, presets[0].ID); err == nil {
					break
				}
			}
		}
	}

	settings := chats.DefaultSettings()
	if settings == model.DefaultGenerationSettings() {
		if d.SystemPrompt != "" {
			settings.SystemPrompt = d.SystemPrompt
		}
		if d.MaxTurns > 0 {
			settings.MaxTurns = d.MaxTurns
		}
		if d.Temperature != nil {
			settings.Temperature = d.Temperature
		}
		if d.MaxTokens > 0 {
			settings.MaxTokens = d.MaxTokens
		}
		if err := chats.UpdateDefaultSettings(settings); err != nil {
			return fmt.Errorf("failed to apply default settings: %w", err)
		}
	}
	return nil
}
