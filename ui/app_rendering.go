package ui

import (
	"fmt"
	"sort"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/charmbracelet/lipgloss"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"

	"chatdesk/model"
	"chatdesk/provider"
	"chatdesk/storage"
)

func (a *App) View() string {
	if !a.ready {
		return "Loading chatdesk..."
	}

	body := a.viewport.View()
	if a.sidebarOpen() {
		body = lipgloss.JoinHorizontal(lipgloss.Top, a.renderSidebar(), " ", body)
	}

	var b strings.Builder
	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n")
	if a.panel != "" {
		b.WriteString(a.panel)
		b.WriteString("\n")
	}
	b.WriteString(a.input.View())
	b.WriteString("\n")
	b.WriteString(a.renderFooter())
	return b.String()
}

func (a *App) renderHeader() string {
	title := "chatdesk"
	if a.deps.Version != "" {
		title += " " + a.deps.Version
	}
	header := TitleStyle.Render(title)

	if conv, ok := a.deps.Chats.ActiveConversation(); ok {
		header += "  " + conv.Title
		if conv.ProviderID != "" {
			header += DimStyle.Render(fmt.Sprintf("  %s / %s", provider.DisplayName(conv.ProviderID), conv.ModelID))
		}
	}

	switch status := a.deps.Chats.Status(); status {
	case model.StatusLoading, model.StatusStreaming:
		header += "  " + a.spinner.View() + DimStyle.Render(string(status))
	case model.StatusError:
		header += "  " + ErrorStyle.Render("error")
	}
	return truncate(header, a.width)
}

func (a *App) renderFooter() string {
	if a.notice.Text != "" {
		if a.notice.Error {
			return ErrorStyle.Render(truncate(a.notice.Text, a.width))
		}
		return StatusStyle.Render(truncate(a.notice.Text, a.width))
	}
	if a.deps.Chats.Status().Busy() {
		return FormatFooter("Esc", "Stop", "PgUp/PgDn", "Scroll", "Ctrl+C", "Quit")
	}
	return FormatFooter("Enter", "Send", "Ctrl+N", "New", "Ctrl+Y", "Copy", "Ctrl+B", "Sidebar", "/help", "Commands")
}

func (a *App) renderSidebar() string {
	activeID := a.activeID()
	var lines []string
	for i, conv := range a.deps.Chats.Conversations() {
		label := truncate(fmt.Sprintf("%d. %s", i+1, conv.Title), sidebarWidth)
		if conv.ID == activeID {
			label = SelectedStyle.Render(label)
		}
		lines = append(lines, label)
	}
	if len(lines) == 0 {
		lines = append(lines, DimStyle.Render("No conversations"))
	}
	return SidebarStyle.
		Width(sidebarWidth).
		Height(a.viewport.Height).
		Render(strings.Join(lines, "\n"))
}

// refresh rebuilds the viewport from the active conversation and follows
// the tail.
func (a *App) refresh() {
	if !a.ready {
		return
	}
	conv, ok := a.deps.Chats.ActiveConversation()
	if !ok || len(conv.Messages) == 0 {
		a.viewport.SetContent(a.renderEmpty())
		return
	}

	state := a.deps.Chats.RequestState()
	width := a.viewport.Width - 2

	var b strings.Builder
	for i, msg := range conv.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(a.renderMessage(msg, width, msg.ID == state.StreamingMessageID))
		b.WriteString("\n")
	}
	if state.Status == model.StatusLoading {
		b.WriteString("\n" + a.spinner.View() + DimStyle.Render("Thinking..."))
	}

	a.viewport.SetContent(b.String())
	a.viewport.GotoBottom()
}

func (a *App) renderEmpty() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(a.greeting + "!"))
	b.WriteString("\n\n")
	if a.deps.Providers != nil && len(a.deps.Providers.Active()) == 0 {
		b.WriteString("No provider is set up yet. Add one with:\n\n")
		b.WriteString("  /key anthropic <api-key>\n  /key openai <api-key>\n  /key ollama -\n\n")
	}
	b.WriteString(DimStyle.Render("Type a message to start, or /help for commands."))
	return b.String()
}

func (a *App) renderMessage(msg model.Message, width int, streaming bool) string {
	var label string
	switch msg.Role {
	case model.RoleUser:
		label = UserStyle.Render("You")
	case model.RoleAssistant:
		label = AssistantStyle.Render("Assistant")
	default:
		label = DimStyle.Render(string(msg.Role))
	}
	label += DimStyle.Render("  " + msg.Timestamp.Format("15:04"))

	content := msg.Content
	switch {
	case msg.Role == model.RoleAssistant && !streaming && content != "":
		content = a.renderMarkdown(msg.ID, content, width)
	default:
		content = lipgloss.NewStyle().Width(width).Render(content)
	}
	if streaming {
		content += " " + a.spinner.View()
	}

	for _, tc := range msg.ToolCalls {
		content += "\n" + DimStyle.Render("→ tool call: "+tc.Name)
	}
	return label + "\n" + content
}

// renderMarkdown renders finished assistant replies, caching by message id
// so a long history is not re-rendered on every stream update.
func (a *App) renderMarkdown(id, content string, width int) string {
	if r, ok := a.rendered[id]; ok && r.content == content && r.width == width {
		return r.out
	}
	// Plain URLs stay plain text so the terminal can make them clickable.
	p := parser.NewWithExtensions(markdown.Extensions() &^ parser.Autolink)
	doc := p.Parse([]byte(content))
	rendered := gomarkdown.Render(doc, markdown.NewRenderer(max(width, 20), 0))
	out := strings.TrimRight(string(rendered), "\n")
	a.rendered[id] = renderedMessage{content: content, width: width, out: out}
	return out
}

func renderConversationList(convs []model.Conversation, activeID string) string {
	if len(convs) == 0 {
		return DimStyle.Render("No conversations yet.")
	}
	var lines []string
	for i, conv := range convs {
		line := fmt.Sprintf("%2d. %s  %s", i+1, truncate(conv.Title, 40),
			DimStyle.Render(conv.UpdatedAt.Format("Jan 2 15:04")))
		if conv.ID == activeID {
			line = SelectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderSearchResults(matches []storage.ConversationMatch) string {
	if len(matches) == 0 {
		return DimStyle.Render("No matches.")
	}
	const maxShown = 8
	var lines []string
	for i, m := range matches {
		if i == maxShown {
			lines = append(lines, DimStyle.Render(fmt.Sprintf("... and %d more", len(matches)-maxShown)))
			break
		}
		where := "title"
		if m.MessageIndex >= 0 {
			where = string(m.Role)
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			TitleStyle.Render(truncate(m.Title, 24)), DimStyle.Render("["+where+"]"), truncate(m.Preview, 60)))
	}
	return strings.Join(lines, "\n")
}

func renderProviderList(cps []model.ConfiguredProvider, defaults model.ProviderSelection, masked func(string) string) string {
	if len(cps) == 0 {
		return DimStyle.Render("No providers configured. Use /key <provider> <api-key>.")
	}
	var lines []string
	for _, cp := range cps {
		state := "off"
		if cp.IsActive {
			state = "on"
		}
		line := fmt.Sprintf("%-12s %-4s %s", cp.ProviderID, state, masked(cp.ProviderID))
		if cp.ProviderID == defaults.ProviderID {
			line += DimStyle.Render("  default: " + defaults.ModelID)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderModelList(providerID string, models []model.ModelInfo) string {
	if len(models) == 0 {
		return DimStyle.Render("No models found for " + providerID + ".")
	}
	lines := []string{TitleStyle.Render(provider.DisplayName(providerID) + " models")}
	for _, m := range models {
		line := m.ID
		if m.Name != "" && m.Name != m.ID {
			line += DimStyle.Render("  " + m.Name)
		}
		lines = append(lines, "  "+line)
	}
	return strings.Join(lines, "\n")
}

func renderHelp() string {
	names := make([]string, 0, len(commandSpecs))
	for name := range commandSpecs {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		spec := commandSpecs[name]
		lines = append(lines, fmt.Sprintf("%-38s %s", spec.usage, DimStyle.Render(spec.help)))
	}
	return strings.Join(lines, "\n")
}
