package commands

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent  = lipgloss.Color("#e91e63")
	colorSuccess = lipgloss.Color("#30d158")
	colorWarning = lipgloss.Color("#ffd60a")
	colorError   = lipgloss.Color("#ff453a")
	colorMuted   = lipgloss.Color("#808080")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	labelStyle   = lipgloss.NewStyle().Foreground(colorMuted).Width(14)
	valueStyle   = lipgloss.NewStyle()
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	panelStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3a3a3a")).
			Padding(0, 1)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

// stateStyle colours a state word: green when healthy, yellow while in
// transition, red on failure.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "running", "connected", "enabled":
		return successStyle
	case "starting", "restarting", "disconnected":
		return warningStyle
	case "error", "failed":
		return errorStyle
	default:
		return mutedStyle
	}
}

// redact hides all but the first character of a secret.
func redact(secret string) string {
	if secret == "" {
		return ""
	}
	runes := []rune(secret)
	if len(runes) == 1 {
		return "*"
	}
	out := string(runes[0])
	for range runes[1:] {
		out += "*"
	}
	return out
}
