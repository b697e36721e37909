package tui

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	Title   lipgloss.Style
	Badge   lipgloss.Style
	Faint   lipgloss.Style
	Error   lipgloss.Style
	UserTag lipgloss.Style
	BotTag  lipgloss.Style
	Note    lipgloss.Style
	Input   lipgloss.Style
}

func DefaultTheme() Theme {
	return Theme{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#1a1a2e", Dark: "#eaeaea"}),
		Badge:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7c6af3")),
		Faint:   lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8a8a8a", Dark: "#6b6b6b"}),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e05561")),
		UserTag: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3fa7d6")),
		BotTag:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#59c9a5")),
		Note:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#d4a24e")),
		Input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#c9c9c9", Dark: "#444444"}).
			Padding(0, 1),
	}
}
