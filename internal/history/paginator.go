// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"sync"

	"github.com/clonestudio/chatkit/internal/transcript"
)

// State is the paginator's position in its Idle -> Loading -> Idle cycle.
type State int

const (
	StateIdle State = iota
	StateLoading
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// =============================================================================
// PAGINATOR
// =============================================================================

// Paginator merges history windows into a transcript and tracks the
// earliest loaded id plus the has-before flag. One paginator per
// transcript.
type Paginator struct {
	client     *Client
	tr         *transcript.Transcript
	authorName string

	mu          sync.Mutex
	state       State
	sessionID   string
	limit       int
	earliestID  string
	hasBefore   bool
	initialized bool
}

// NewPaginator creates a paginator for the given transcript. authorName
// labels human history records for display.
func NewPaginator(client *Client, tr *transcript.Transcript, authorName string) *Paginator {
	return &Paginator{
		client:     client,
		tr:         tr,
		authorName: authorName,
	}
}

// State returns the current machine state.
func (p *Paginator) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// HasBefore reports whether older pages remain.
func (p *Paginator) HasBefore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasBefore
}

// EarliestLoadedID returns the current backfill anchor ("" before the
// initial load).
func (p *Paginator) EarliestLoadedID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.earliestID
}

// =============================================================================
// OPERATIONS
// =============================================================================

// LoadInitial fetches the newest window and populates the transcript.
// Returns the number of messages added.
func (p *Paginator) LoadInitial(ctx context.Context, sessionID string, limit int) (int, error) {
	p.mu.Lock()
	if p.state == StateLoading {
		p.mu.Unlock()
		return 0, nil
	}
	p.state = StateLoading
	p.sessionID = sessionID
	p.limit = limit
	p.mu.Unlock()

	window, err := p.client.FetchWindow(ctx, sessionID, FetchParams{
		Limit:            limit,
		IncludeAssistant: true,
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateIdle
	if err != nil {
		return 0, err
	}

	mapped := MapRecords(window.Items, p.authorName)
	added := 0
	for _, msg := range mapped {
		if err := p.tr.Append(msg); err != nil {
			if errors.Is(err, transcript.ErrDuplicateID) {
				continue // tolerated: initial load retried over cached state
			}
			return added, err
		}
		added++
	}

	if len(mapped) > 0 {
		p.earliestID = window.Page.FirstID
		if p.earliestID == "" {
			p.earliestID = mapped[0].ID
		}
		p.hasBefore = window.Page.HasBefore
		p.initialized = true
	}
	return added, nil
}

// LoadOlder fetches the window before the earliest loaded message and
// prepends it. No-op while loading, when no older page exists, or before
// a successful LoadInitial. A failed fetch leaves all cursors unchanged,
// so the next call retries from the same anchor.
func (p *Paginator) LoadOlder(ctx context.Context) (int, error) {
	p.mu.Lock()
	if p.state == StateLoading || !p.initialized || !p.hasBefore || p.earliestID == "" {
		p.mu.Unlock()
		return 0, nil
	}
	p.state = StateLoading
	sessionID := p.sessionID
	limit := p.limit
	anchor := p.earliestID
	p.mu.Unlock()

	window, err := p.client.FetchWindow(ctx, sessionID, FetchParams{
		Limit:            limit,
		IncludeAssistant: true,
		AnchorMessageID:  anchor,
		Direction:        "before",
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = StateIdle
	if err != nil {
		return 0, err // cursors untouched; safe to retry
	}

	mapped := MapRecords(window.Items, p.authorName)
	if len(mapped) == 0 {
		// Empty window: trust the flag so we stop asking.
		p.hasBefore = window.Page.HasBefore
		return 0, nil
	}

	added := p.tr.PrependWindow(mapped)
	p.earliestID = window.Page.FirstID
	if p.earliestID == "" {
		p.earliestID = mapped[0].ID
	}
	p.hasBefore = window.Page.HasBefore
	return added, nil
}
