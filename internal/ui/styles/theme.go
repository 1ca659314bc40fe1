// Copyright (c) 2025 Surya Hanjaya
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the dora TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette colors shared across views.
var (
	Cyan   = lipgloss.Color("#04B5D9")
	Purple = lipgloss.Color("#9D7CD8")
	Green  = lipgloss.Color("#9ECE6A")
	Yellow = lipgloss.Color("#E0AF68")
	Red    = lipgloss.Color("#F7768E")
	Gray   = lipgloss.Color("#565F89")
	White  = lipgloss.Color("#C0CAF5")

	lightText   = lipgloss.Color("#343B58")
	lightSubtle = lipgloss.Color("#8990B3")
)

// Theme holds the styled components for the application, adjusted to the
// terminal's color capability and the user's theme preference.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Header    lipgloss.Style
	TabActive lipgloss.Style
	TabIdle   lipgloss.Style

	DocName     lipgloss.Style
	DocSelected lipgloss.Style
	DocFolder   lipgloss.Style

	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	SourceNote      lipgloss.Style
	VersionNote     lipgloss.Style

	StatusInfo  lipgloss.Style
	StatusError lipgloss.Style
	ProgressBar lipgloss.Style
	Help        lipgloss.Style
}

// NewTheme builds the theme for the given preference ("dark" or
// "light"), detecting the terminal profile via termenv.
func NewTheme(preference string) *Theme {
	dark := preference != "light"

	text := White
	subtle := Gray
	if !dark {
		text = lightText
		subtle = lightSubtle
	}

	return &Theme{
		IsDark:       dark,
		ColorProfile: termenv.ColorProfile(),

		Header: lipgloss.NewStyle().
			Foreground(Purple).
			Bold(true).
			Padding(0, 1),
		TabActive: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true).
			Underline(true).
			Padding(0, 1),
		TabIdle: lipgloss.NewStyle().
			Foreground(subtle).
			Padding(0, 1),

		DocName: lipgloss.NewStyle().
			Foreground(text),
		DocSelected: lipgloss.NewStyle().
			Foreground(Green).
			Bold(true),
		DocFolder: lipgloss.NewStyle().
			Foreground(Yellow),

		UserBubble: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true),
		AssistantBubble: lipgloss.NewStyle().
			Foreground(text),
		SourceNote: lipgloss.NewStyle().
			Foreground(subtle).
			Italic(true),
		VersionNote: lipgloss.NewStyle().
			Foreground(Yellow),

		StatusInfo: lipgloss.NewStyle().
			Foreground(subtle),
		StatusError: lipgloss.NewStyle().
			Foreground(Red).
			Bold(true),
		ProgressBar: lipgloss.NewStyle().
			Foreground(Green),
		Help: lipgloss.NewStyle().
			Foreground(subtle),
	}
}
