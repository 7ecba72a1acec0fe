// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleHuman:
		return "You"
	case RoleAI:
		return "Clone"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single transcript entry.
//
// IDs are opaque and unique within a transcript: client-generated (uuid)
// for optimistic entries, server-assigned for history records. Content is
// append-only while Streaming is true and immutable afterward; CreatedAt
// is display-only and never used for ordering.
type Message struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	AuthorName string    `json:"author_name,omitempty"`

	// Streaming marks the one in-flight AI reply. Not persisted.
	Streaming bool `json:"-"`
}

// NewHumanMessage creates an optimistic human message with a client id.
func NewHumanMessage(content, authorName string) *Message {
	return &Message{
		ID:         generateID(),
		Role:       RoleHuman,
		Content:    content,
		CreatedAt:  time.Now(),
		AuthorName: authorName,
	}
}

// NewAIPlaceholder creates an empty streaming AI message awaiting deltas.
func NewAIPlaceholder() *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleAI,
		CreatedAt: time.Now(),
		Streaming: true,
	}
}

// Preview returns a truncated preview of the message content.
// Rune-based so multi-byte characters are never split.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// generateID creates a unique client-side message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}
