// Package ui is chatdesk's terminal front end: a conversation viewport, an
// input line and a handful of slash commands driving the chat orchestrator.
package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"chatdesk/chat"
	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/store"
)

const sidebarWidth = 28

// Deps are the services the front end drives.
type Deps struct {
	Orchestrator *chat.Orchestrator
	Chats        *store.ChatStore
	Providers    *store.ProviderStore
	AppState     *store.AppStore
	Version      string
}

// App is the root bubbletea model.
type App struct {
	deps Deps

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	greeting string
	notice   noticeMsg
	// panel holds command output shown under the conversation until the
	// next input is submitted.
	panel string
	// listed is the conversation order last shown by /list, for /switch.
	listed []model.Conversation

	rendered map[string]renderedMessage
}

type renderedMessage struct {
	content string
	width   int
	out     string
}

func NewApp(deps Deps) *App {
	ti := textinput.New()
	ti.Placeholder = "Type a message, or /help for commands"
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	a := &App{
		deps:     deps,
		viewport: viewport.New(0, 0),
		input:    ti,
		spinner:  sp,
		rendered: make(map[string]renderedMessage),
	}
	a.greeting = greetingFor(time.Now())
	if deps.AppState != nil && deps.AppState.State().LastGreeting != a.greeting {
		if err := deps.AppState.SetLastGreeting(a.greeting); err != nil && config.Debug {
			config.DebugLog.Warnf("[UI] failed to save greeting: %v", err)
		}
	}
	return a
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.spinner.Tick)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.ready = true
		a.layout()
		a.refresh()
		return a, nil

	case tea.KeyMsg:
		if cmd, handled := a.handleKey(msg); handled {
			return a, cmd
		}

	case StoreChangedMsg:
		a.layout()
		a.refresh()
		return a, nil

	case replyDoneMsg:
		switch {
		case errors.Is(msg.Err, chat.ErrBusy):
			a.notice = noticeMsg{Text: "Still answering. Press Esc to stop.", Error: true}
		case msg.Err != nil:
			a.notice = errorNotice(msg.Err)
		case msg.Result != nil && msg.Result.Canceled:
			a.notice = notice("Stopped.")
		case msg.Result != nil && msg.Result.Err != nil:
			a.notice = noticeMsg{Text: "Request failed. /retry to try again.", Error: true}
		default:
			a.notice = noticeMsg{}
		}
		a.refresh()
		return a, nil

	case modelsListMsg:
		if msg.Err != nil {
			a.notice = errorNotice(msg.Err)
			return a, nil
		}
		a.panel = renderModelList(msg.ProviderID, msg.Models)
		a.layout()
		return a, nil

	case connectionTestedMsg:
		switch {
		case msg.Err != nil:
			a.notice = errorNotice(msg.Err)
		case msg.OK:
			a.notice = notice(msg.ProviderID + ": connection OK")
		default:
			a.notice = noticeMsg{Text: msg.ProviderID + ": connection failed", Error: true}
		}
		return a, nil

	case noticeMsg:
		a.notice = msg
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		if a.deps.Chats.Status().Busy() {
			a.refresh()
		}
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.viewport, cmd = a.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		a.deps.Orchestrator.Abort()
		return tea.Quit, true

	case "esc":
		if a.deps.Orchestrator.Abort() {
			a.notice = notice("Stopped.")
		} else {
			a.panel = ""
			a.layout()
		}
		return nil, true

	case "ctrl+n":
		return a.runCommand(Command{Name: "new"}), true

	case "ctrl+y":
		return a.runCommand(Command{Name: "copy"}), true

	case "ctrl+b":
		return a.runCommand(Command{Name: "sidebar"}), true

	case "pgup", "pgdown":
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return cmd, true

	case "enter":
		text := strings.TrimSpace(a.input.Value())
		if text == "" {
			return nil, true
		}
		a.input.Reset()
		a.panel = ""
		a.notice = noticeMsg{}
		a.layout()
		return a.submit(text), true
	}
	return nil, false
}

func (a *App) submit(text string) tea.Cmd {
	cmd, err := ParseCommand(text)
	switch {
	case err == nil:
		return a.runCommand(cmd)
	case !errors.Is(err, errNotCommand):
		a.notice = errorNotice(err)
		return nil
	}

	if a.deps.Chats.Status().Busy() {
		a.notice = noticeMsg{Text: "Still answering. Press Esc to stop.", Error: true}
		return nil
	}
	if a.deps.AppState != nil && a.deps.AppState.State().IsFirstVisit {
		if err := a.deps.AppState.MarkVisited(); err != nil && config.Debug {
			config.DebugLog.Warnf("[UI] failed to save first visit: %v", err)
		}
	}

	orch := a.deps.Orchestrator
	return func() tea.Msg {
		res, err := orch.SendMessage(context.Background(), text)
		return replyDoneMsg{Result: res, Err: err}
	}
}

func (a *App) retry() tea.Cmd {
	orch := a.deps.Orchestrator
	return func() tea.Msg {
		res, err := orch.Retry(context.Background())
		return replyDoneMsg{Result: res, Err: err}
	}
}

// layout sizes the viewport to what is left after the fixed rows.
func (a *App) layout() {
	if !a.ready {
		return
	}
	width := a.width
	if a.sidebarOpen() {
		width -= sidebarWidth + 2
	}
	height := a.height - 4 // header, input, footer, spacing
	if a.panel != "" {
		height -= strings.Count(a.panel, "\n") + 2
	}
	a.viewport.Width = max(width, 20)
	a.viewport.Height = max(height, 3)
	a.input.Width = max(a.width-4, 10)
}

func (a *App) sidebarOpen() bool {
	return a.deps.AppState != nil && a.deps.AppState.State().SidebarOpen && a.width >= 80
}

func greetingFor(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Good morning"
	case h < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}
