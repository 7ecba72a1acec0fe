// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view.
//
// The view is a thin renderer over the client facade in internal/client:
// the client owns the transcript, the live stream, and the paginator,
// while this package owns layout, keyboard handling, and scroll
// behavior. Transcript changes are relayed from the client's OnChange
// callback into the Bubble Tea loop through a coalescing channel, so
// the typewriter's reveal cadence drives redraws without the model
// polling.
//
// Scroll behavior mirrors the web client: the viewport follows the
// bottom while a reply streams, paging up past the top loads an older
// history window, and the previously visible line is re-anchored after
// the prepend so the view does not jump.
package chat
