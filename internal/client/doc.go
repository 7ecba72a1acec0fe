// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client composes the stream session, typewriter buffer,
// transcript and history paginator into one conversation facade. It
// enforces the single-writer rule: at most one reply streams at a time,
// and submitting while one is in flight stops and finalizes it before
// the replacement produces any output.
package client
