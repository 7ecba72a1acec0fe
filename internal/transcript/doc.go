// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript holds the ordered message list that is the single
// source of truth rendered by any front-end. Appends grow the end (new
// replies), prepends merge older history at the front without duplicating
// ids, and content mutation is serialized so the typewriter drain and a
// final override can never interleave writes to the same message.
package transcript
