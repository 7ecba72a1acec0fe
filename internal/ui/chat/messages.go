// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// messages.go - Bubble Tea message types for the chat view.

package chat

import "github.com/clonestudio/chatkit/internal/config"

// TranscriptChangedMsg signals that the transcript mutated: a typewriter
// tick revealed more text, a message settled, or history was prepended.
// The client delivers change notifications on its own goroutines; they
// are relayed into the Bubble Tea loop through a channel and arrive here.
type TranscriptChangedMsg struct{}

// InitialHistoryMsg carries the result of the startup history load.
type InitialHistoryMsg struct {
	Added int
	Err   error
}

// OlderHistoryMsg carries the result of a backfill page load, plus the
// scroll anchor captured before the fetch so the view can restore it
// after the prepend.
type OlderHistoryMsg struct {
	Added int
	Err   error
}

// SendResultMsg carries the result of a submission.
type SendResultMsg struct {
	AIID string
	Err  error
}

// ConfigReloadedMsg carries a hot-reloaded configuration from the file
// watcher.
type ConfigReloadedMsg struct {
	Cfg *config.Config
}

// clearStatusMsg expires a transient status line.
type clearStatusMsg struct{}
