// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Markdown rendering for finished replies.
//
// USABILITY: Markdown rendering and history for better CLI experience

package cli

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer is the global glamour renderer for markdown output.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(GetTerminalWidth()),
	)
	if err != nil {
		// Fallback to plain text if renderer initialization fails
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown content for terminal display.
// Returns the original content if rendering fails or renderer is unavailable.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}

	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayResponse prints a finished reply, with markdown rendering only
// when stdout is a TTY to avoid corrupting piped output. Plain replies
// on a terminal are wrapped at word boundaries; piped output stays
// byte-for-byte as received.
func displayResponse(content string, markdown bool) {
	switch {
	case markdown && IsStdoutTTY():
		fmt.Print(renderMarkdown(content))
	case IsStdoutTTY():
		fmt.Print(WrapText(content, GetTerminalWidth()))
	default:
		fmt.Print(content)
	}
}
