// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

// Viewport is the minimal scrolling surface the anchor helper needs.
// The TUI viewport satisfies it; any widget with a measurable content
// height and a settable offset can.
type Viewport interface {
	ScrollOffset() int
	ContentHeight() int
	SetScrollOffset(offset int)
}

// ScrollAnchor captures the viewport position before a prepend so the
// view does not visibly jump when older content is inserted above it.
//
// Usage: capture before the paginator mutates the transcript, restore
// after the prepend has been rendered.
type ScrollAnchor struct {
	offset int
	height int
}

// CaptureScroll records the current offset and content height.
func CaptureScroll(v Viewport) ScrollAnchor {
	return ScrollAnchor{
		offset: v.ScrollOffset(),
		height: v.ContentHeight(),
	}
}

// Restore repositions the viewport, shifting the saved offset by the
// height delta the prepend introduced.
func (a ScrollAnchor) Restore(v Viewport) {
	delta := v.ContentHeight() - a.height
	if delta < 0 {
		delta = 0
	}
	v.SetScrollOffset(a.offset + delta)
}
