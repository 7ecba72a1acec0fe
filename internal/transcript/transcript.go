// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateID indicates an Append with an id already present.
// Programmer error on the append path; the history prepend path merges
// duplicates silently instead because overlapping windows are expected.
var ErrDuplicateID = errors.New("duplicate message id")

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript is an ordered, oldest-first sequence of messages.
//
// All mutation goes through the methods below and is serialized by an
// internal mutex, so two logical writers (typewriter drain, final
// override) can never interleave character-level writes to one message.
type Transcript struct {
	mu       sync.Mutex
	messages []*Message
	byID     map[string]*Message
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{
		byID: make(map[string]*Message),
	}
}

// =============================================================================
// MUTATION
// =============================================================================

// Append adds a message to the end. Fails with ErrDuplicateID if the id
// already exists.
func (t *Transcript) Append(msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byID[msg.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, msg.ID)
	}
	t.messages = append(t.messages, msg)
	t.byID[msg.ID] = msg
	return nil
}

// PrependWindow inserts an ordered batch at the front, preserving the
// batch's internal order and skipping any ids already present. Calling it
// twice with overlapping windows is safe: each id ends up exactly once.
func (t *Transcript) PrependWindow(msgs []*Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fresh := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		if _, ok := t.byID[msg.ID]; ok {
			continue
		}
		fresh = append(fresh, msg)
		t.byID[msg.ID] = msg
	}
	if len(fresh) == 0 {
		return 0
	}

	merged := make([]*Message, 0, len(fresh)+len(t.messages))
	merged = append(merged, fresh...)
	merged = append(merged, t.messages...)
	t.messages = merged
	return len(fresh)
}

// AppendContent appends text to a message's content in place.
// No-op if the id is absent or the message is no longer streaming.
func (t *Transcript) AppendContent(id, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg, ok := t.byID[id]; ok && msg.Streaming {
		msg.Content += text
	}
}

// SetContent replaces a message's content. Used for the final-frame
// override and for error fallback text. No-op if the id is absent.
func (t *Transcript) SetContent(id, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg, ok := t.byID[id]; ok {
		msg.Content = content
	}
}

// Finalize clears a message's streaming flag, freezing its content.
func (t *Transcript) Finalize(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg, ok := t.byID[id]; ok {
		msg.Streaming = false
	}
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Find returns the message with the given id, or nil.
func (t *Transcript) Find(id string) *Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[id]
}

// Messages returns a snapshot copy of the current ordering. The message
// pointers are shared; the slice is the caller's to keep.
func (t *Transcript) Messages() []*Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Oldest returns the first (oldest) message, or nil if empty.
func (t *Transcript) Oldest() *Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.messages) == 0 {
		return nil
	}
	return t.messages[0]
}

// Newest returns the last (newest) message, or nil if empty.
func (t *Transcript) Newest() *Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.messages) == 0 {
		return nil
	}
	return t.messages[len(t.messages)-1]
}

// StreamingMessage returns the message currently streaming, or nil.
// The invariant of at most one streaming message is enforced by the
// client facade's stop-previous-before-start rule.
func (t *Transcript) StreamingMessage() *Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Streaming {
			return t.messages[i]
		}
	}
	return nil
}
