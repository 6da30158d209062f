package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/KHET-1/diamond-drill/internal/config"
)

// Catppuccin Mocha palette. Mutable so the config file can override it.
var (
	ColorGreen  = lipgloss.Color("#a6e3a1")
	ColorYellow = lipgloss.Color("#f9e2af")
	ColorRed    = lipgloss.Color("#f38ba8")
	ColorMuted  = lipgloss.Color("#5a6278")
	ColorBright = lipgloss.Color("#cdd6f4")
)

var (
	styleHeader lipgloss.Style
	styleOK     lipgloss.Style
	styleWarn   lipgloss.Style
	styleFail   lipgloss.Style
	styleMuted  lipgloss.Style
)

func init() {
	rebuildStyles()
}

func rebuildStyles() {
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)
	styleOK = lipgloss.NewStyle().Foreground(ColorGreen)
	styleWarn = lipgloss.NewStyle().Foreground(ColorYellow)
	styleFail = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	styleMuted = lipgloss.NewStyle().Foreground(ColorMuted)
}

// ApplyTheme overrides colors from the config file and rebuilds all styles.
func ApplyTheme(tc config.ThemeConfig) {
	if tc.Green != nil {
		ColorGreen = lipgloss.Color(*tc.Green)
	}
	if tc.Yellow != nil {
		ColorYellow = lipgloss.Color(*tc.Yellow)
	}
	if tc.Red != nil {
		ColorRed = lipgloss.Color(*tc.Red)
	}
	if tc.Muted != nil {
		ColorMuted = lipgloss.Color(*tc.Muted)
	}
	if tc.Bright != nil {
		ColorBright = lipgloss.Color(*tc.Bright)
	}
	rebuildStyles()
}

// healthStyle colors a file health or export outcome label.
func healthStyle(status string) lipgloss.Style {
	switch status {
	case "clean", "recovered", "resumed":
		return styleOK
	case "recovered-with-errors", "unreadable":
		return styleWarn
	case "failed":
		return styleFail
	default:
		return styleMuted
	}
}
