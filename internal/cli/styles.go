// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Centralized styling for the thinkchat REPL.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// init configures lipgloss color profile based on terminal capabilities.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

var (
	// PromptStyle is the input prompt.
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")). // Cyan
			Bold(true)

	// ReasoningStyle renders streamed thinking text, dim and italic so it
	// reads as distinct from the answer.
	ReasoningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")). // Dim gray
			Italic(true)

	// TitleStyle is used for the welcome banner and conversation titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// InfoStyle is used for informational messages.
	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Light gray

	// ErrorStyle is used for error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// ActiveStyle marks the active conversation in /list output.
	ActiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")) // Bright green

	// DimStyle is used for secondary information and hints.
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim gray
)
