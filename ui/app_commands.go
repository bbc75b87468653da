package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/provider"
	"chatdesk/store"
)

const providerCallTimeout = 15 * time.Second

// runCommand executes a parsed slash command. Store mutations happen
// synchronously; anything that talks to a vendor runs as a tea.Cmd.
func (a *App) runCommand(cmd Command) tea.Cmd {
	if config.Debug {
		config.DebugLog.Debugf("[UI] command /%s", cmd.Name)
	}

	chats := a.deps.Chats
	providers := a.deps.Providers

	switch cmd.Name {
	case "new":
		if _, err := chats.CreateConversation(providers.Defaults()); err != nil {
			return a.fail(err)
		}
		return a.ok("New conversation.")

	case "list":
		a.listed = chats.Conversations()
		a.panel = renderConversationList(a.listed, a.activeID())
		a.layout()
		return nil

	case "switch":
		convs := a.listed
		if convs == nil {
			convs = chats.Conversations()
		}
		n := cmd.IntArg(0)
		if n < 1 || n > len(convs) {
			return a.fail(fmt.Errorf("no conversation %d (see /list)", n))
		}
		if err := chats.SetActiveConversation(convs[n-1].ID); err != nil {
			return a.fail(err)
		}
		return a.ok("Switched to " + convs[n-1].Title + ".")

	case "rename":
		return a.withActive(func(conv model.Conversation) error {
			return chats.RenameConversation(conv.ID, cmd.Rest(0))
		}, "Renamed.")

	case "delete":
		return a.withActive(func(conv model.Conversation) error {
			return chats.DeleteConversation(conv.ID)
		}, "Conversation deleted.")

	case "clear":
		return a.withActive(func(conv model.Conversation) error {
			return chats.ClearMessages(conv.ID)
		}, "Messages cleared.")

	case "search":
		a.panel = renderSearchResults(chats.SearchConversations(cmd.Rest(0)))
		a.layout()
		return nil

	case "use":
		sel := model.ProviderSelection{ProviderID: cmd.Arg(0), ModelID: cmd.Arg(1)}
		if _, ok := provider.Lookup(sel.ProviderID); !ok {
			return a.fail(&model.UnsupportedProviderError{ProviderID: sel.ProviderID})
		}
		conv, ok := chats.ActiveConversation()
		if !ok {
			if _, err := chats.CreateConversation(sel); err != nil {
				return a.fail(err)
			}
		} else if err := chats.SetConversationModel(conv.ID, sel); err != nil {
			return a.fail(err)
		}
		return a.ok(fmt.Sprintf("Using %s / %s.", provider.DisplayName(sel.ProviderID), sel.ModelID))

	case "default":
		if err := providers.SetDefault(cmd.Arg(0), cmd.Arg(1)); err != nil {
			return a.fail(err)
		}
		return a.ok(fmt.Sprintf("New conversations will use %s / %s.", cmd.Arg(0), cmd.Arg(1)))

	case "key":
		return a.configureProvider(cmd)

	case "activate", "deactivate":
		if err := providers.SetActive(cmd.Arg(0), cmd.Name == "activate"); err != nil {
			return a.fail(err)
		}
		return a.ok(fmt.Sprintf("%s %sd.", provider.DisplayName(cmd.Arg(0)), cmd.Name))

	case "providers":
		a.panel = renderProviderList(providers.List(), providers.Defaults(), providers.MaskedKey)
		a.layout()
		return nil

	case "models":
		return a.fetchModels(cmd.Arg(0))

	case "test":
		return a.testProvider(cmd.Arg(0))

	case "system":
		return a.withActive(func(conv model.Conversation) error {
			settings := settingsOf(conv)
			settings.SystemPrompt = cmd.Rest(0)
			return chats.UpdateConversationSettings(conv.ID, settings)
		}, "System prompt updated.")

	case "turns":
		settings := chats.DefaultSettings()
		settings.MaxTurns = cmd.IntArg(0)
		if err := chats.UpdateDefaultSettings(settings); err != nil {
			return a.fail(err)
		}
		if settings.MaxTurns == 0 {
			return a.ok("Sending the full history.")
		}
		return a.ok(fmt.Sprintf("Sending the last %d turns.", settings.MaxTurns))

	case "stream":
		settings := chats.DefaultSettings()
		settings.Stream = strings.EqualFold(cmd.Arg(0), "on")
		if err := chats.UpdateDefaultSettings(settings); err != nil {
			return a.fail(err)
		}
		return a.ok("Streaming " + strings.ToLower(cmd.Arg(0)) + ".")

	case "retry":
		if chats.Status().Busy() {
			return a.fail(fmt.Errorf("still answering; press Esc to stop"))
		}
		return a.retry()

	case "copy":
		return a.copyLastReply()

	case "sidebar":
		if a.deps.AppState == nil {
			return nil
		}
		if err := a.deps.AppState.SetSidebarOpen(!a.deps.AppState.State().SidebarOpen); err != nil {
			return a.fail(err)
		}
		a.layout()
		a.refresh()
		return nil

	case "help":
		a.panel = renderHelp()
		a.layout()
		return nil

	case "quit":
		a.deps.Orchestrator.Abort()
		return tea.Quit
	}
	return nil
}

// configureProvider handles /key <provider> <api-key> [base-url]. A key of
// "-" stores no key, for vendors that do not need one.
func (a *App) configureProvider(cmd Command) tea.Cmd {
	providers := a.deps.Providers
	id, key, baseURL := cmd.Arg(0), cmd.Arg(1), cmd.Arg(2)
	if key == "-" {
		key = ""
	}

	cp, _ := providers.Get(id)
	cp.ProviderID = id
	cp.APIKey = key
	cp.BaseURL = baseURL
	cp.IsActive = true
	if err := providers.Upsert(cp); err != nil {
		return a.fail(err)
	}

	if providers.Defaults().Empty() {
		if presets := provider.PresetModels(id); len(presets) > 0 {
			if err := providers.SetDefault(id, presets[0].ID); err != nil && config.Debug {
				config.DebugLog.Warnf("[UI] could not set default provider: %v", err)
			}
		}
	}

	a.notice = notice(fmt.Sprintf("%s configured (%s). Testing connection...",
		provider.DisplayName(id), providers.MaskedKey(id)))
	return a.testProvider(id)
}

func (a *App) fetchModels(providerID string) tea.Cmd {
	orch := a.deps.Orchestrator
	a.notice = notice("Fetching models...")
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
		defer cancel()
		models, err := orch.RefreshModels(ctx, providerID)
		return modelsListMsg{ProviderID: providerID, Models: models, Err: err}
	}
}

func (a *App) testProvider(providerID string) tea.Cmd {
	orch := a.deps.Orchestrator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), providerCallTimeout)
		defer cancel()
		ok, err := orch.TestProvider(ctx, providerID)
		return connectionTestedMsg{ProviderID: providerID, OK: ok, Err: err}
	}
}

func (a *App) copyLastReply() tea.Cmd {
	conv, ok := a.deps.Chats.ActiveConversation()
	if !ok {
		return a.fail(fmt.Errorf("nothing to copy"))
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if m := conv.Messages[i]; m.Role == model.RoleAssistant && m.Content != "" {
			if err := clipboard.WriteAll(m.Content); err != nil {
				return a.fail(fmt.Errorf("copy failed: %w", err))
			}
			return a.ok("Copied last reply.")
		}
	}
	return a.fail(fmt.Errorf("nothing to copy"))
}

func (a *App) withActive(fn func(model.Conversation) error, done string) tea.Cmd {
	conv, ok := a.deps.Chats.ActiveConversation()
	if !ok {
		return a.fail(fmt.Errorf("no active conversation (start one with /new)"))
	}
	if err := fn(conv); err != nil {
		return a.fail(err)
	}
	return a.ok(done)
}

func (a *App) activeID() string {
	if conv, ok := a.deps.Chats.ActiveConversation(); ok {
		return conv.ID
	}
	return ""
}

func (a *App) ok(text string) tea.Cmd {
	a.notice = notice(text)
	return nil
}

func (a *App) fail(err error) tea.Cmd {
	a.notice = errorNotice(err)
	return nil
}

func settingsOf(conv model.Conversation) store.ConversationSettings {
	return store.ConversationSettings{
		SystemPrompt: conv.SystemPrompt,
		MaxTurns:     conv.MaxTurns,
		Temperature:  conv.Temperature,
		MaxTokens:    conv.MaxTokens,
	}
}
