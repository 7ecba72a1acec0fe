// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the plain-terminal chat REPL.
//
// The REPL is the fallback surface for non-TTY stdout and for --plain:
// liner-backed input with persistent history, streamed reply echo, and
// a small set of slash commands (/help, /history, /older, /status,
// /quit). The richer bubbletea interface lives in internal/ui.
//
// Replies stream token-by-token to stdout as the typewriter reveals
// them. On a TTY with markdown enabled, the reply is instead collected
// and rendered with glamour once it settles, since markdown cannot be
// rendered incrementally.
package cli
