// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package wire decodes the clone-studio streaming wire format.
//
// The backend delivers one JSON object per Server-Sent Event:
//
//	{ "type": "delta", "data": "text chunk" }
//
// Frame kinds: start, delta, final, end, error, tool_start, tool_end.
// The format is forward-compatible: unknown kinds and invalid payloads
// decode to ErrMalformedFrame, which callers log and skip without
// terminating the stream.
package wire
