// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/clonestudio/chatkit/internal/transcript"
)

// historyServer serves canned windows keyed by the anchorMessageId query
// parameter. The empty key is the newest window.
type historyServer struct {
	mu      sync.Mutex
	windows map[string]*Window
	fail    bool
	calls   int
}

func (h *historyServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.calls++
		fail := h.fail
		window := h.windows[r.URL.Query().Get("anchorMessageId")]
		h.mu.Unlock()

		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if window == nil {
			window = &Window{Items: []Record{}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    window,
		})
	}
}

func (h *historyServer) setFail(fail bool) {
	h.mu.Lock()
	h.fail = fail
	h.mu.Unlock()
}

func records(role string, ids ...string) []Record {
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, Record{ID: id, Role: role, Text: "text " + id})
	}
	return out
}

// scenario builds the two-window fixture used across tests: a newest
// window of m7..m13 and an older window of m2..m6 behind it.
func scenarioServer() (*historyServer, *httptest.Server) {
	hs := &historyServer{windows: map[string]*Window{
		"": {
			Items: records("user", "m7", "m8", "m9", "m10", "m11", "m12", "m13"),
			Page:  Page{FirstID: "m7", LastID: "m13", HasBefore: true},
		},
		"m7": {
			Items: records("user", "m2", "m3", "m4", "m5", "m6"),
			Page:  Page{FirstID: "m2", LastID: "m6", HasBefore: false},
		},
	}}
	return hs, httptest.NewServer(hs.handler())
}

// =============================================================================
// PAGINATOR TESTS
// =============================================================================

func TestPaginatorInitialThenOlder(t *testing.T) {
	hs, srv := scenarioServer()
	defer srv.Close()

	tr := transcript.New()
	p := NewPaginator(NewClient(srv.URL, srv.Client()), tr, "Alex")

	added, err := p.LoadInitial(context.Background(), "sess-1", 7)
	if err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	if added != 7 {
		t.Errorf("initial added = %d, want 7", added)
	}
	if p.EarliestLoadedID() != "m7" {
		t.Errorf("earliest = %q, want m7", p.EarliestLoadedID())
	}
	if !p.HasBefore() {
		t.Error("hasBefore should be true after initial load")
	}

	added, err = p.LoadOlder(context.Background())
	if err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if added != 5 {
		t.Errorf("older added = %d, want 5", added)
	}
	if tr.Len() != 12 {
		t.Errorf("transcript len = %d, want 12", tr.Len())
	}
	if p.EarliestLoadedID() != "m2" {
		t.Errorf("earliest = %q, want m2", p.EarliestLoadedID())
	}
	if p.HasBefore() {
		t.Error("hasBefore should be false after last page")
	}

	// Order must be strictly oldest-first with no duplicates.
	msgs := tr.Messages()
	for i, want := range []string{"m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9", "m10", "m11", "m12", "m13"} {
		if msgs[i].ID != want {
			t.Fatalf("messages[%d].ID = %q, want %q", i, msgs[i].ID, want)
		}
	}

	// Exhausted: further calls are no-ops and hit no endpoint.
	hs.mu.Lock()
	before := hs.calls
	hs.mu.Unlock()
	added, err = p.LoadOlder(context.Background())
	if err != nil || added != 0 {
		t.Errorf("LoadOlder after exhaustion = (%d, %v), want (0, nil)", added, err)
	}
	hs.mu.Lock()
	if hs.calls != before {
		t.Errorf("calls = %d, want %d (no fetch after exhaustion)", hs.calls, before)
	}
	hs.mu.Unlock()
}

func TestPaginatorFailedFetchKeepsCursors(t *testing.T) {
	hs, srv := scenarioServer()
	defer srv.Close()

	tr := transcript.New()
	p := NewPaginator(NewClient(srv.URL, srv.Client()), tr, "Alex")
	if _, err := p.LoadInitial(context.Background(), "sess-1", 7); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}

	hs.setFail(true)
	added, err := p.LoadOlder(context.Background())
	if err == nil {
		t.Fatal("LoadOlder should fail")
	}
	if added != 0 {
		t.Errorf("added = %d, want 0 on failure", added)
	}
	if p.EarliestLoadedID() != "m7" {
		t.Errorf("earliest = %q, want m7 (unchanged on failure)", p.EarliestLoadedID())
	}
	if !p.HasBefore() {
		t.Error("hasBefore should remain true on failure")
	}
	if p.State() != StateIdle {
		t.Errorf("state = %v, want idle after failure", p.State())
	}
	if tr.Len() != 7 {
		t.Errorf("transcript len = %d, want 7 (untouched)", tr.Len())
	}

	// Retry from the pre-failure anchor succeeds.
	hs.setFail(false)
	added, err = p.LoadOlder(context.Background())
	if err != nil {
		t.Fatalf("retry LoadOlder: %v", err)
	}
	if added != 5 || tr.Len() != 12 {
		t.Errorf("retry added = %d, len = %d, want 5 and 12", added, tr.Len())
	}
}

func TestPaginatorOverlappingWindowDeduplicates(t *testing.T) {
	hs := &historyServer{windows: map[string]*Window{
		"": {
			Items: records("user", "m5", "m6", "m7"),
			Page:  Page{FirstID: "m5", LastID: "m7", HasBefore: true},
		},
		// Overlaps the loaded window at m5 and m6.
		"m5": {
			Items: records("user", "m3", "m4", "m5", "m6"),
			Page:  Page{FirstID: "m3", LastID: "m6", HasBefore: false},
		},
	}}
	srv := httptest.NewServer(hs.handler())
	defer srv.Close()

	tr := transcript.New()
	p := NewPaginator(NewClient(srv.URL, srv.Client()), tr, "Alex")
	if _, err := p.LoadInitial(context.Background(), "sess-1", 3); err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}

	added, err := p.LoadOlder(context.Background())
	if err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2 (m5, m6 already present)", added)
	}
	msgs := tr.Messages()
	for i, want := range []string{"m3", "m4", "m5", "m6", "m7"} {
		if msgs[i].ID != want {
			t.Fatalf("messages[%d].ID = %q, want %q", i, msgs[i].ID, want)
		}
	}
}

func TestPaginatorLoadOlderBeforeInitialIsNoOp(t *testing.T) {
	hs, srv := scenarioServer()
	defer srv.Close()

	tr := transcript.New()
	p := NewPaginator(NewClient(srv.URL, srv.Client()), tr, "Alex")

	added, err := p.LoadOlder(context.Background())
	if err != nil || added != 0 {
		t.Errorf("LoadOlder before init = (%d, %v), want (0, nil)", added, err)
	}
	hs.mu.Lock()
	if hs.calls != 0 {
		t.Errorf("calls = %d, want 0", hs.calls)
	}
	hs.mu.Unlock()
}

func TestPaginatorEmptySessionHistory(t *testing.T) {
	hs := &historyServer{windows: map[string]*Window{}}
	srv := httptest.NewServer(hs.handler())
	defer srv.Close()

	tr := transcript.New()
	p := NewPaginator(NewClient(srv.URL, srv.Client()), tr, "Alex")
	added, err := p.LoadInitial(context.Background(), "sess-1", 7)
	if err != nil {
		t.Fatalf("LoadInitial: %v", err)
	}
	if added != 0 || tr.Len() != 0 {
		t.Errorf("added = %d, len = %d, want both 0", added, tr.Len())
	}
	if p.HasBefore() {
		t.Error("hasBefore should be false for an empty session")
	}
	// No cursor means no backfill attempt either.
	if got, err := p.LoadOlder(context.Background()); err != nil || got != 0 {
		t.Errorf("LoadOlder on empty = (%d, %v), want (0, nil)", got, err)
	}
}

func TestRecordLegacyFields(t *testing.T) {
	tests := []struct {
		name     string
		rec      Record
		wantRole string
		wantText string
	}{
		{"modern", Record{Role: "assistant", Text: "hi"}, "assistant", "hi"},
		{"legacy", Record{Type: "user", Content: "hello"}, "user", "hello"},
		{"modern wins", Record{Role: "user", Type: "assistant", Text: "a", Content: "b"}, "user", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.RoleValue(); got != tt.wantRole {
				t.Errorf("RoleValue() = %q, want %q", got, tt.wantRole)
			}
			if got := tt.rec.TextValue(); got != tt.wantText {
				t.Errorf("TextValue() = %q, want %q", got, tt.wantText)
			}
		})
	}
}

func TestMapRecordsRoles(t *testing.T) {
	items := []Record{
		{ID: "m1", Role: "user", Text: "question"},
		{ID: "m2", Type: "assistant", Content: "answer"},
	}
	msgs := MapRecords(items, "Alex")
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Role != transcript.RoleHuman || msgs[0].AuthorName != "Alex" {
		t.Errorf("human mapping wrong: %+v", msgs[0])
	}
	if msgs[1].Role != transcript.RoleAI || msgs[1].AuthorName != "" {
		t.Errorf("assistant mapping wrong: %+v", msgs[1])
	}
	if msgs[1].Content != "answer" {
		t.Errorf("legacy content not mapped: %q", msgs[1].Content)
	}
}

// =============================================================================
// SCROLL ANCHOR TESTS
// =============================================================================

type fakeViewport struct {
	offset int
	height int
}

func (f *fakeViewport) ScrollOffset() int          { return f.offset }
func (f *fakeViewport) ContentHeight() int         { return f.height }
func (f *fakeViewport) SetScrollOffset(offset int) { f.offset = offset }

func TestScrollAnchorRestoreAfterPrepend(t *testing.T) {
	v := &fakeViewport{offset: 0, height: 40}
	a := CaptureScroll(v)

	// Prepend grows content by 25 lines; the view should land 25 lower.
	v.height = 65
	a.Restore(v)
	if v.offset != 25 {
		t.Errorf("offset = %d, want 25", v.offset)
	}
}

func TestScrollAnchorNoGrowth(t *testing.T) {
	v := &fakeViewport{offset: 12, height: 40}
	a := CaptureScroll(v)
	a.Restore(v)
	if v.offset != 12 {
		t.Errorf("offset = %d, want 12", v.offset)
	}
}

func ExampleClient_FetchWindow() {
	// Windows are addressed by an anchor message and a direction.
	_ = FetchParams{
		Limit:            30,
		IncludeAssistant: true,
		AnchorMessageID:  "m7",
		Direction:        "before",
	}
	fmt.Println("before m7")
	// Output: before m7
}
