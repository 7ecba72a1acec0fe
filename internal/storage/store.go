// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/clonestudio/chatkit/internal/transcript"
)

// =============================================================================
// MESSAGE STORE
// =============================================================================

// Store is the sqlite-backed message cache. It mirrors finished
// transcript messages so a session can be reopened without a backend,
// and serves as the offline fallback for the initial history load.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Single writer; the connection pool just adds lock contention.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(
		`INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", SchemaVersion),
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to record schema version: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE AND LOAD
// =============================================================================

// SaveMessages upserts a session's messages. Positions are assigned from
// the slice order, so the cache always reflects the transcript's current
// ordering. In-flight streaming messages are skipped; only settled
// content is cached.
func (s *Store) SaveMessages(ctx context.Context, sessionID string, msgs []*transcript.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, author_name, created_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			position = excluded.position
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range msgs {
		if msg.Streaming {
			continue
		}
		_, err := stmt.ExecContext(ctx,
			msg.ID, sessionID, msg.Role.String(), msg.Content,
			msg.AuthorName, msg.CreatedAt.Unix(), i,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert message %s: %w", msg.ID, err)
		}
	}

	return tx.Commit()
}

// LoadRecent returns the newest limit messages for a session, ordered
// oldest first, ready to prepend into a transcript.
func (s *Store) LoadRecent(ctx context.Context, sessionID string, limit int) ([]*transcript.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, author_name, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY position DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var newestFirst []*transcript.Message
	for rows.Next() {
		var (
			msg       transcript.Message
			role      string
			author    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &author, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = transcript.Role(role)
		msg.AuthorName = author.String
		msg.CreatedAt = time.Unix(createdAt, 0)
		newestFirst = append(newestFirst, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into transcript order.
	out := make([]*transcript.Message, len(newestFirst))
	for i, msg := range newestFirst {
		out[len(out)-1-i] = msg
	}
	return out, nil
}

// DeleteSession removes all cached messages for a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	return err
}

// MessageCount returns the number of cached messages for a session.
func (s *Store) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&n)
	return n, err
}
