// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream manages one live AI reply: it opens the SSE transport
// for a submitted message, decodes frames, and delivers them through
// callbacks. At most one session should be live per transcript; the
// client facade enforces stop-previous-before-start.
package stream
