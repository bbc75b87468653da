package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	dimColor     = lipgloss.Color("7")
	accentColor  = lipgloss.Color("12")
	successColor = lipgloss.Color("10")
	warningColor = lipgloss.Color("11")
	dangerColor  = lipgloss.Color("9")

	UserStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(accentColor)

	DimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	TitleStyle = lipgloss.NewStyle().
			Bold(true)

	StatusStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	SidebarStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(dimColor).
			PaddingRight(1)
)

// FormatFooter formats alternating keys and descriptions:
// FormatFooter("Enter", "Send", "Esc", "Stop") -> "Enter Send  Esc Stop".
func FormatFooter(parts ...string) string {
	descStyle := lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	var result []string
	for i := 0; i+1 < len(parts); i += 2 {
		result = append(result, parts[i]+" "+descStyle.Render(parts[i+1]))
	}
	return strings.Join(result, "  ")
}

// truncate shortens s to width terminal cells, emoji included.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}
