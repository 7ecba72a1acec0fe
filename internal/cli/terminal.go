// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - TTY detection and terminal geometry helpers.
//
// USABILITY: Markdown rendering and prompts are gated on TTY detection
// so piped output stays clean.

package cli

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/clonestudio/chatkit/internal/util"
)

// DefaultTerminalWidth is used when the real width cannot be determined.
const DefaultTerminalWidth = 80

// IsTTY returns true if stdin is attached to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is attached to a terminal.
// Piped output (`chatkit | less`) disables markdown and color.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsStderrTTY returns true if stderr is attached to a terminal.
func IsStderrTTY() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// GetTerminalWidth returns the current terminal width in columns, or
// DefaultTerminalWidth when stdout is not a terminal.
func GetTerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return DefaultTerminalWidth
	}
	return w
}

// PrintWarning writes a warning line to stderr, styled only when stderr
// is a terminal so redirected logs stay grep-friendly.
func PrintWarning(format string, args ...any) {
	tag := "[Warning]"
	if IsStderrTTY() {
		tag = warningStyle.Render(tag)
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

// WrapText wraps text at word boundaries to fit maxWidth columns.
// Words longer than the width are emitted on their own line unbroken.
func WrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}

	var out strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(wrapLine(line, maxWidth))
	}
	return out.String()
}

func wrapLine(line string, maxWidth int) string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return line
	}

	var out strings.Builder
	lineLen := 0
	for _, word := range words {
		// Display columns, not runes: CJK words are double width.
		wordLen := util.StringWidth(word)
		switch {
		case lineLen == 0:
			out.WriteString(word)
			lineLen = wordLen
		case lineLen+1+wordLen <= maxWidth:
			out.WriteByte(' ')
			out.WriteString(word)
			lineLen += 1 + wordLen
		default:
			out.WriteByte('\n')
			out.WriteString(word)
			lineLen = wordLen
		}
	}
	return out.String()
}
