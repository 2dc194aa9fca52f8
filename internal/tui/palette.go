// Package tui renders batch progress and the closing summary.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorInk       = lipgloss.Color("#ECEFF4")
	ColorDim       = lipgloss.Color("#6B7280")
	ColorAccent    = lipgloss.Color("#5E81AC")
	ColorAccentAlt = lipgloss.Color("#88C0D0")
	ColorSuccess   = lipgloss.Color("#10B981")
	ColorWarn      = lipgloss.Color("#F59E0B")
)
