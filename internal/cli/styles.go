// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Lip Gloss styles shared by the plain CLI.

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/clonestudio/chatkit/internal/ui/styles"
)

var (
	// Prompt style
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	// Welcome banner style
	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	// Info style
	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	// Command style
	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	// Warning style
	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// Error style
	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose)

	// Section header style
	summaryHeaderStyle = lipgloss.NewStyle().
				Foreground(styles.Cyan).
				Bold(true)

	// Human speaker label
	humanStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	// AI speaker label
	aiStyle = lipgloss.NewStyle().
		Foreground(styles.Purple).
		Bold(true)
)
