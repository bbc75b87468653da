package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdesk/chat"
	"chatdesk/model"
	"chatdesk/provider"
	"chatdesk/provider/testutil"
	"chatdesk/storage"
	"chatdesk/store"
)

func newTestApp(t *testing.T) (*App, *testutil.MockChatService) {
	t.Helper()
	backend, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	chats, err := store.NewChatStore(backend)
	require.NoError(t, err)
	providers, err := store.NewProviderStore(backend, nil)
	require.NoError(t, err)
	appState, err := store.NewAppStore(backend)
	require.NoError(t, err)

	svc := testutil.NewMockChatService(provider.IDAnthropic)
	chatServices := provider.NewChatServiceFactory()
	chatServices.Register(svc)
	modelServices := provider.NewModelServiceFactory()

	app := NewApp(Deps{
		Orchestrator: chat.New(chats, providers, chatServices, modelServices),
		Chats:        chats,
		Providers:    providers,
		AppState:     appState,
	})
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return app, svc
}

// enter types text and presses Enter, running any returned command once.
func enter(t *testing.T, app *App, text string) tea.Msg {
	t.Helper()
	app.input.SetValue(text)
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		return nil
	}
	msg := cmd()
	app.Update(msg)
	return msg
}

func TestKeyCommandConfiguresProvider(t *testing.T) {
	app, _ := newTestApp(t)

	msg := enter(t, app, "/key anthropic sk-ant-test-12345678")
	tested, ok := msg.(connectionTestedMsg)
	require.True(t, ok, "expected a connection test, got %T", msg)
	assert.True(t, tested.OK)

	cp, ok := app.deps.Providers.Get(provider.IDAnthropic)
	require.True(t, ok)
	assert.True(t, cp.IsActive)

	defaults := app.deps.Providers.Defaults()
	assert.Equal(t, provider.IDAnthropic, defaults.ProviderID)
	assert.NotEmpty(t, defaults.ModelID)

	enter(t, app, "/providers")
	assert.Contains(t, app.panel, "sk-a****5678")
	assert.NotContains(t, app.panel, "sk-ant-test-12345678")
}

func TestSendMessageFromInput(t *testing.T) {
	app, svc := newTestApp(t)
	enter(t, app, "/key anthropic sk-ant-test-12345678")

	msg := enter(t, app, "Hello there")
	done, ok := msg.(replyDoneMsg)
	require.True(t, ok, "expected a reply, got %T", msg)
	require.NoError(t, done.Err)
	assert.Equal(t, "Mock response", done.Result.Content)

	assert.Len(t, svc.Calls(), 1)
	assert.Empty(t, app.input.Value())
	assert.False(t, app.deps.AppState.State().IsFirstVisit)
	assert.Contains(t, app.View(), "Hello there")
}

func TestConversationCommands(t *testing.T) {
	app, _ := newTestApp(t)

	enter(t, app, "/new")
	enter(t, app, "/rename Physics")
	conv, ok := app.deps.Chats.ActiveConversation()
	require.True(t, ok)
	assert.Equal(t, "Physics", conv.Title)

	enter(t, app, "/use openai gpt-4o")
	conv, _ = app.deps.Chats.ActiveConversation()
	assert.Equal(t, "openai", conv.ProviderID)
	assert.Equal(t, "gpt-4o", conv.ModelID)

	enter(t, app, "/turns 3")
	assert.Equal(t, 3, app.deps.Chats.DefaultSettings().MaxTurns)

	enter(t, app, "/stream off")
	assert.False(t, app.deps.Chats.DefaultSettings().Stream)

	enter(t, app, "/list")
	assert.Contains(t, app.panel, "Physics")

	enter(t, app, "/delete")
	_, ok = app.deps.Chats.ActiveConversation()
	assert.False(t, ok)
}

func TestUnknownCommandShowsError(t *testing.T) {
	app, svc := newTestApp(t)

	enter(t, app, "/frobnicate")
	assert.True(t, app.notice.Error)
	assert.Contains(t, app.notice.Text, "unknown command")
	assert.Empty(t, svc.Calls())
}

func TestGuidanceRenderedWithoutProvider(t *testing.T) {
	app, _ := newTestApp(t)

	msg := enter(t, app, "Hi")
	done, ok := msg.(replyDoneMsg)
	require.True(t, ok)
	require.Error(t, done.Result.Err)

	view := app.View()
	assert.True(t, strings.Contains(view, "/key"), "guidance should be visible")
	assert.Equal(t, model.StatusError, app.deps.Chats.Status())
}
