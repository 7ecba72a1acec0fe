// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history fetches bounded windows of past messages keyed by an
// anchor message id and a direction, and merges them into the transcript
// while tracking pagination cursors. The paginator is a small state
// machine (Idle -> Loading -> Idle); failed fetches never move cursors,
// so a later retry works from the pre-failure anchor.
package history
