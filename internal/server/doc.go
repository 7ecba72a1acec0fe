// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides an in-process stub chat backend.
//
// The stub speaks the same wire protocol as the production service:
//
//   - GET /api/interviewer/sessions/{session}/message streams an SSE
//     reply (start, deltas, end, final)
//   - GET /api/v1/sessions/{session}/history serves windowed history
//     with anchor-based backward pagination
//   - GET /health reports liveness
//
// It answers every message with a canned streamed echo and keeps the
// conversation in memory, which is enough to run the full client stack
// with no real backend: `chatkit --demo` starts one on a loopback port
// and connects to it.
package server
