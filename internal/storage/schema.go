// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1
)

// SQLite schema for the offline message cache.
const Schema = `
-- Metadata table for schema version
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- Messages table: one row per transcript message, per session
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,           -- "human" or "ai"
    content TEXT NOT NULL,
    author_name TEXT,
    created_at INTEGER NOT NULL,  -- Unix timestamp
    position INTEGER NOT NULL     -- transcript ordinal, the ordering key
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, position);
`
