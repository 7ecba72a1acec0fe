// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"errors"
	"testing"
)

func msg(id string, role Role, content string) *Message {
	return &Message{ID: id, Role: role, Content: content}
}

// =============================================================================
// APPEND TESTS
// =============================================================================

func TestAppendAndFind(t *testing.T) {
	tr := New()

	if err := tr.Append(msg("m1", RoleHuman, "hello")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := tr.Append(msg("m2", RoleAI, "hi")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if tr.Len() != 2 {
		t.Errorf("Len = %d, want 2", tr.Len())
	}
	if got := tr.Find("m1"); got == nil || got.Content != "hello" {
		t.Errorf("Find(m1) = %+v", got)
	}
	if got := tr.Find("missing"); got != nil {
		t.Errorf("Find(missing) = %+v, want nil", got)
	}
}

func TestAppendDuplicateID(t *testing.T) {
	tr := New()
	if err := tr.Append(msg("m1", RoleHuman, "a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	err := tr.Append(msg("m1", RoleHuman, "b"))
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d after rejected append, want 1", tr.Len())
	}
}

// =============================================================================
// PREPEND MERGE TESTS
// =============================================================================

func TestPrependWindowOrder(t *testing.T) {
	tr := New()
	tr.Append(msg("m7", RoleHuman, "seven"))
	tr.Append(msg("m8", RoleAI, "eight"))

	added := tr.PrependWindow([]*Message{
		msg("m5", RoleHuman, "five"),
		msg("m6", RoleAI, "six"),
	})
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	wantOrder := []string{"m5", "m6", "m7", "m8"}
	msgs := tr.Messages()
	if len(msgs) != len(wantOrder) {
		t.Fatalf("len = %d, want %d", len(msgs), len(wantOrder))
	}
	for i, id := range wantOrder {
		if msgs[i].ID != id {
			t.Errorf("messages[%d].ID = %s, want %s", i, msgs[i].ID, id)
		}
	}
}

// Overlapping windows leave each id exactly once, in relative order.
func TestPrependWindowIdempotentMerge(t *testing.T) {
	tr := New()
	tr.Append(msg("m5", RoleHuman, "five"))
	tr.Append(msg("m6", RoleAI, "six"))

	window := []*Message{
		msg("m3", RoleHuman, "three"),
		msg("m4", RoleAI, "four"),
		msg("m5", RoleHuman, "five-dup"),
	}

	if added := tr.PrependWindow(window); added != 2 {
		t.Errorf("first merge added = %d, want 2", added)
	}
	if added := tr.PrependWindow(window); added != 0 {
		t.Errorf("second merge added = %d, want 0", added)
	}

	wantOrder := []string{"m3", "m4", "m5", "m6"}
	msgs := tr.Messages()
	if len(msgs) != len(wantOrder) {
		t.Fatalf("len = %d, want %d", len(msgs), len(wantOrder))
	}
	for i, id := range wantOrder {
		if msgs[i].ID != id {
			t.Errorf("messages[%d].ID = %s, want %s", i, msgs[i].ID, id)
		}
	}
	// The duplicate never overwrote the original content.
	if got := tr.Find("m5").Content; got != "five" {
		t.Errorf("m5 content = %q, want %q", got, "five")
	}
}

// =============================================================================
// CONTENT MUTATION TESTS
// =============================================================================

func TestAppendContentOnlyWhileStreaming(t *testing.T) {
	tr := New()
	ai := NewAIPlaceholder()
	tr.Append(ai)

	tr.AppendContent(ai.ID, "Hi")
	tr.AppendContent(ai.ID, " there")
	if ai.Content != "Hi there" {
		t.Errorf("Content = %q, want %q", ai.Content, "Hi there")
	}

	tr.Finalize(ai.ID)
	tr.AppendContent(ai.ID, "!!!")
	if ai.Content != "Hi there" {
		t.Errorf("Content mutated after finalize: %q", ai.Content)
	}

	// Absent id is a no-op, not a panic.
	tr.AppendContent("missing", "x")
}

func TestSetContentOverride(t *testing.T) {
	tr := New()
	ai := NewAIPlaceholder()
	tr.Append(ai)
	tr.AppendContent(ai.ID, "Hel")

	tr.SetContent(ai.ID, "Hello, world!")
	if ai.Content != "Hello, world!" {
		t.Errorf("Content = %q, want %q", ai.Content, "Hello, world!")
	}
}

// =============================================================================
// ACCESSOR TESTS
// =============================================================================

func TestOldestNewestStreaming(t *testing.T) {
	tr := New()
	if tr.Oldest() != nil || tr.Newest() != nil {
		t.Error("empty transcript should have nil oldest/newest")
	}

	tr.Append(msg("m1", RoleHuman, "q"))
	ai := NewAIPlaceholder()
	tr.Append(ai)

	if tr.Oldest().ID != "m1" {
		t.Errorf("Oldest = %s", tr.Oldest().ID)
	}
	if tr.Newest().ID != ai.ID {
		t.Errorf("Newest = %s", tr.Newest().ID)
	}
	if got := tr.StreamingMessage(); got == nil || got.ID != ai.ID {
		t.Errorf("StreamingMessage = %+v", got)
	}

	tr.Finalize(ai.ID)
	if tr.StreamingMessage() != nil {
		t.Error("StreamingMessage should be nil after finalize")
	}
}

func TestMessagePreview(t *testing.T) {
	m := msg("m1", RoleHuman, "héllo wörld this is long")
	if got := m.Preview(10); got != "héllo w..." {
		t.Errorf("Preview = %q", got)
	}
	short := msg("m2", RoleHuman, "hi")
	if got := short.Preview(10); got != "hi" {
		t.Errorf("Preview = %q", got)
	}
}

func TestNewMessageIDsUnique(t *testing.T) {
	a := NewHumanMessage("a", "")
	b := NewHumanMessage("b", "")
	if a.ID == b.ID {
		t.Errorf("ids collide: %s", a.ID)
	}
	ai := NewAIPlaceholder()
	if !ai.Streaming || ai.Content != "" || ai.Role != RoleAI {
		t.Errorf("placeholder = %+v", ai)
	}
}
