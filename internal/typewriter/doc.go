// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package typewriter decouples network arrival rate from on-screen reveal
// rate. Delta chunks are queued as runes and drained into the target
// message at a fixed cadence by a single ticker loop, giving a smooth
// typing effect no matter how bursty the stream is.
package typewriter
