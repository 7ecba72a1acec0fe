// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the chatkit
// terminal interfaces.
//
// The package has three layers:
//
//   - colors.go: the adaptive color palette. Every color is a Lip Gloss
//     AdaptiveColor so the same styles work on light and dark terminals.
//   - theme.go: the Theme struct, which composes the palette into the
//     styled components the TUI renders (bubbles, input, status bar).
//   - animations.go: spinner frame sets and the typing cursor used
//     while a reply streams or history loads.
//
// The plain CLI in internal/cli builds its few styles directly from the
// palette; the bubbletea model in internal/ui consumes a full Theme.
//
// ACCESSIBILITY: status states always pair color with an ASCII shape
// indicator ([OK], [X], [!], [i]) so they remain readable for
// colorblind users and on monochrome terminals.
package styles
