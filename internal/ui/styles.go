// Package ui holds the lipgloss styles for CLI output.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	successColor = lipgloss.Color("42")
	errorColor   = lipgloss.Color("196")
	warningColor = lipgloss.Color("214")
	mutedColor   = lipgloss.Color("240")

	// Header style
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	// Success style
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// Error style
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// Warning style
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// Muted style
	MutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)
)
