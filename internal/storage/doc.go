// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the sqlite-backed offline message cache.
//
// Finished transcript messages are written through to the cache after
// each history load and each settled reply. When the backend is
// unreachable, the most recent cached window stands in for the initial
// history fetch.
//
// # Usage
//
// Open a store and mirror a transcript:
//
//	store, err := storage.Open(path)
//	err = store.SaveMessages(ctx, sessionID, transcript.Messages())
//
// Serve an offline window:
//
//	msgs, err := store.LoadRecent(ctx, sessionID, 30)
//
// # Storage Location
//
// The database lives at ~/.chatkit/messages.db unless overridden in
// configuration.
package storage
