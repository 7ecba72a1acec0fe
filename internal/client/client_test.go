// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clonestudio/chatkit/internal/transcript"
)

// backend fakes both endpoints: the SSE message route and the history
// route. Stream payload sequences are selected by the submitted text.
type backend struct {
	mu      sync.Mutex
	streams map[string][]string      // text -> event payloads
	hold    map[string]chan struct{} // text -> block after payloads
	history []map[string]any
	page    map[string]any
	status  int
}

func newBackend() *backend {
	return &backend{
		streams: make(map[string][]string),
		hold:    make(map[string]chan struct{}),
	}
}

func (b *backend) serve() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		status := b.status
		b.mu.Unlock()
		if status != 0 {
			http.Error(w, "down", status)
			return
		}

		if strings.Contains(r.URL.Path, "/history") {
			w.Header().Set("Content-Type", "application/json")
			b.mu.Lock()
			items, page := b.history, b.page
			b.mu.Unlock()
			if items == nil {
				items = []map[string]any{}
			}
			if page == nil {
				page = map[string]any{"hasBefore": false}
			}
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data":    map[string]any{"items": items, "page": page},
			})
			return
		}

		text := r.URL.Query().Get("text")
		b.mu.Lock()
		payloads := b.streams[text]
		hold := b.hold[text]
		b.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, p := range payloads {
			w.Write([]byte("data: " + p + "\n\n"))
			flusher.Flush()
		}
		if hold != nil {
			<-hold
		}
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server, cache MessageCache) *Client {
	t.Helper()
	return New(Options{
		BaseURL:        srv.URL,
		SessionID:      "sess-1",
		CloneID:        "clone-1",
		AuthorName:     "Alex",
		PageSize:       7,
		TypingInterval: time.Millisecond,
		TypingBatch:    64,
		HTTPClient:     srv.Client(),
		Cache:          cache,
	})
}

// waitIdle polls until no message is streaming.
func waitIdle(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !c.Streaming() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("client never went idle")
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSendDeltasRevealEverything(t *testing.T) {
	b := newBackend()
	b.streams["Hello"] = []string{
		`{"type":"start"}`,
		`{"type":"delta","data":"Hi "}`,
		`{"type":"delta","data":"there!"}`,
		`{"type":"end"}`,
	}
	srv := b.serve()
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	humanID, aiID, err := c.Send(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitIdle(t, c)

	human := c.Transcript().Find(humanID)
	if human == nil || human.Content != "Hello" || human.Role != transcript.RoleHuman {
		t.Errorf("human message = %+v", human)
	}
	if human.AuthorName != "Alex" {
		t.Errorf("author = %q, want Alex", human.AuthorName)
	}

	ai := c.Transcript().Find(aiID)
	if ai == nil {
		t.Fatal("placeholder missing")
	}
	if ai.Content != "Hi there!" {
		t.Errorf("ai content = %q, want %q", ai.Content, "Hi there!")
	}
	if ai.Streaming {
		t.Error("ai message should be finalized")
	}
	if c.Transcript().Len() != 2 {
		t.Errorf("transcript len = %d, want 2", c.Transcript().Len())
	}
	if c.LastError() != nil {
		t.Errorf("LastError = %v, want nil", c.LastError())
	}
}

func TestSendFinalOverridesPartial(t *testing.T) {
	b := newBackend()
	b.streams["Hello"] = []string{
		`{"type":"delta","data":"Hel"}`,
		`{"type":"delta","data":"lo fr"}`,
		`{"type":"end"}`,
		`{"type":"final","data":"Hello, a polished answer."}`,
	}
	srv := b.serve()
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, aiID, err := c.Send(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitIdle(t, c)

	ai := c.Transcript().Find(aiID)
	if ai.Content != "Hello, a polished answer." {
		t.Errorf("content = %q, want the final payload exactly (replace, not merge)", ai.Content)
	}
	if ai.Streaming {
		t.Error("message should be finalized")
	}
}

func TestSendErrorShowsFallbackText(t *testing.T) {
	b := newBackend()
	b.status = http.StatusBadGateway
	srv := b.serve()
	defer srv.Close()

	var hookErr error
	var hookMu sync.Mutex
	c := newTestClient(t, srv, nil)
	c.opts.OnStreamError = func(err error) {
		hookMu.Lock()
		hookErr = err
		hookMu.Unlock()
	}

	_, aiID, err := c.Send(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitIdle(t, c)

	ai := c.Transcript().Find(aiID)
	if ai.Content != FallbackConnectText {
		t.Errorf("content = %q, want connect fallback text", ai.Content)
	}
	if c.LastError() == nil {
		t.Error("LastError should be set")
	}
	hookMu.Lock()
	if hookErr == nil {
		t.Error("OnStreamError hook never fired")
	}
	hookMu.Unlock()
}

func TestErrorFrameReplacesPartialContent(t *testing.T) {
	b := newBackend()
	b.streams["Hello"] = []string{
		`{"type":"delta","data":"partial answer"}`,
		`{"type":"error","data":{"message":"upstream_failed"}}`,
	}
	srv := b.serve()
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, aiID, _ := c.Send(context.Background(), "Hello")
	waitIdle(t, c)

	// A reply cut off by an error must not be left truncated
	// mid-sentence; the fallback replaces it wholesale.
	ai := c.Transcript().Find(aiID)
	if ai.Content != FallbackErrorText {
		t.Errorf("content = %q, want the error fallback text", ai.Content)
	}
	if strings.Contains(ai.Content, "partial answer") {
		t.Error("partial reveal survived the error frame")
	}
	if ai.Streaming {
		t.Error("message should be finalized after the error")
	}
}

func TestSendRejectsBlank(t *testing.T) {
	c := New(Options{SessionID: "s"})
	if _, _, err := c.Send(context.Background(), "   \n\t"); err != ErrEmptyMessage {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
	if c.Transcript().Len() != 0 {
		t.Error("blank submit must not touch the transcript")
	}
}

// =============================================================================
// CANCEL-THEN-REPLACE
// =============================================================================

func TestSendReplacesInFlightReply(t *testing.T) {
	b := newBackend()
	release := make(chan struct{})
	b.streams["first"] = []string{`{"type":"delta","data":"AAAA"}`}
	b.hold["first"] = release
	b.streams["second"] = []string{
		`{"type":"delta","data":"BBBB"}`,
		`{"type":"end"}`,
	}
	srv := b.serve()
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv, nil)
	_, firstAI, err := c.Send(context.Background(), "first")
	if err != nil {
		t.Fatalf("Send first: %v", err)
	}

	// Wait until the first reply has some revealed or buffered content.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg := c.Transcript().Find(firstAI); msg != nil && msg.Content != "" {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	_, secondAI, err := c.Send(context.Background(), "second")
	if err != nil {
		t.Fatalf("Send second: %v", err)
	}

	// The first reply must already be finalized with its partial flushed,
	// before the second produces anything.
	first := c.Transcript().Find(firstAI)
	if first.Streaming {
		t.Error("first reply still streaming after replacement")
	}
	if first.Content != "AAAA" {
		t.Errorf("first content = %q, want the flushed partial", first.Content)
	}

	waitIdle(t, c)
	second := c.Transcript().Find(secondAI)
	if second.Content != "BBBB" {
		t.Errorf("second content = %q, want BBBB", second.Content)
	}
	if got := c.Transcript().Len(); got != 4 {
		t.Errorf("transcript len = %d, want 4", got)
	}
	if first.Content != "AAAA" {
		t.Errorf("first content mutated to %q after replacement", first.Content)
	}
}

func TestStopStreamIsIdempotent(t *testing.T) {
	b := newBackend()
	release := make(chan struct{})
	b.streams["go"] = []string{`{"type":"delta","data":"xy"}`}
	b.hold["go"] = release
	srv := b.serve()
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv, nil)
	_, aiID, _ := c.Send(context.Background(), "go")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg := c.Transcript().Find(aiID); msg != nil && msg.Content != "" {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	c.StopStream()
	c.StopStream()

	ai := c.Transcript().Find(aiID)
	if ai.Streaming {
		t.Error("message still streaming after StopStream")
	}
	if ai.Content != "xy" {
		t.Errorf("content = %q, want the flushed partial", ai.Content)
	}
	if c.Streaming() {
		t.Error("client should be idle")
	}
}

// =============================================================================
// PENDING DRAFT
// =============================================================================

func TestSendPending(t *testing.T) {
	b := newBackend()
	b.streams["queued up"] = []string{
		`{"type":"delta","data":"ok"}`,
		`{"type":"end"}`,
	}
	srv := b.serve()
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	c.SetPending("queued up")
	humanID, _, err := c.SendPending(context.Background())
	if err != nil {
		t.Fatalf("SendPending: %v", err)
	}
	if c.Transcript().Find(humanID).Content != "queued up" {
		t.Error("pending draft not submitted")
	}

	// Draft is consumed.
	if h, _, err := c.SendPending(context.Background()); err != nil || h != "" {
		t.Errorf("second SendPending = (%q, %v), want no-op", h, err)
	}
	waitIdle(t, c)
}

// =============================================================================
// HISTORY AND CACHE
// =============================================================================

type memCache struct {
	mu   sync.Mutex
	msgs map[string][]*transcript.Message
}

func newMemCache() *memCache {
	return &memCache{msgs: make(map[string][]*transcript.Message)}
}

func (m *memCache) SaveMessages(_ context.Context, sessionID string, msgs []*transcript.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[sessionID] = msgs
	return nil
}

func (m *memCache) LoadRecent(_ context.Context, sessionID string, limit int) ([]*transcript.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.msgs[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func TestLoadInitialHistory(t *testing.T) {
	b := newBackend()
	b.history = []map[string]any{
		{"id": "m1", "role": "user", "text": "hi"},
		{"id": "m2", "role": "assistant", "text": "hello"},
	}
	b.page = map[string]any{"firstId": "m1", "lastId": "m2", "hasBefore": false}
	srv := b.serve()
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	added, err := c.LoadInitialHistory(context.Background())
	if err != nil {
		t.Fatalf("LoadInitialHistory: %v", err)
	}
	if added != 2 || c.Transcript().Len() != 2 {
		t.Errorf("added = %d, len = %d, want 2 and 2", added, c.Transcript().Len())
	}
	if c.HasOlderHistory() {
		t.Error("HasOlderHistory should be false")
	}
}

func TestLoadInitialHistoryFallsBackToCache(t *testing.T) {
	b := newBackend()
	b.status = http.StatusServiceUnavailable
	srv := b.serve()
	defer srv.Close()

	cache := newMemCache()
	cache.SaveMessages(context.Background(), "sess-1", []*transcript.Message{
		{ID: "m1", Role: transcript.RoleHuman, Content: "cached question"},
		{ID: "m2", Role: transcript.RoleAI, Content: "cached answer"},
	})

	c := newTestClient(t, srv, cache)
	added, err := c.LoadInitialHistory(context.Background())
	if err != nil {
		t.Fatalf("cache fallback should not error, got %v", err)
	}
	if added != 2 || c.Transcript().Len() != 2 {
		t.Errorf("added = %d, len = %d, want 2 and 2", added, c.Transcript().Len())
	}
}

func TestLoadInitialHistoryNoCacheSurfacesError(t *testing.T) {
	b := newBackend()
	b.status = http.StatusServiceUnavailable
	srv := b.serve()
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	if _, err := c.LoadInitialHistory(context.Background()); err == nil {
		t.Fatal("expected fetch error with no cache")
	}
	if c.Transcript().Len() != 0 {
		t.Error("transcript must stay empty on failure")
	}
}

func TestFinishedReplyWrittenThroughToCache(t *testing.T) {
	b := newBackend()
	b.streams["Hello"] = []string{
		`{"type":"delta","data":"answer"}`,
		`{"type":"end"}`,
	}
	srv := b.serve()
	defer srv.Close()

	cache := newMemCache()
	c := newTestClient(t, srv, cache)
	if _, _, err := c.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitIdle(t, c)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cache.mu.Lock()
		n := len(cache.msgs["sess-1"])
		cache.mu.Unlock()
		if n == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("cache never received the finished conversation")
}
