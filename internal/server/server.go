// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clonestudio/chatkit/internal/wire"
)

// DefaultReplyDelay is the pause between delta frames, slow enough that
// the typewriter reveal is visible in demos.
const DefaultReplyDelay = 40 * time.Millisecond

// Options configures a stub backend.
type Options struct {
	// ReplyDelay is the pause between delta frames. Zero means the
	// default; negative disables the pause (tests).
	ReplyDelay time.Duration

	// Logger for request logging. Nil discards.
	Logger *log.Logger
}

// =============================================================================
// STUB BACKEND
// =============================================================================

// Stub is an in-process chat backend speaking the same wire protocol as
// the production service: SSE replies on the message endpoint and
// windowed JSON on the history endpoint. It answers every message with
// a canned streamed echo, which is enough to exercise the full client
// stack offline (demos, manual testing).
type Stub struct {
	opts   Options
	logger *log.Logger

	mu       sync.Mutex
	sessions map[string][]record
}

// record is one stored message, oldest-first per session. Roles use the
// backend's "user"/"assistant" vocabulary, which the history mapper
// keys on.
type record struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// window mirrors the history endpoint's response payload.
type window struct {
	Items []record `json:"items"`
	Page  page     `json:"page"`
}

type page struct {
	FirstID   string `json:"firstId"`
	LastID    string `json:"lastId"`
	HasBefore bool   `json:"hasBefore"`
	HasAfter  bool   `json:"hasAfter"`
}

// NewStub creates an empty stub backend.
func NewStub(opts Options) *Stub {
	if opts.ReplyDelay == 0 {
		opts.ReplyDelay = DefaultReplyDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Stub{
		opts:     opts,
		logger:   logger,
		sessions: make(map[string][]record),
	}
}

// Seed fills a session with a canned back-and-forth so history
// pagination has something to page through.
func (s *Stub) Seed(sessionID string, pairs int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := time.Now().Add(-time.Duration(pairs) * time.Minute)
	for i := 0; i < pairs; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		s.sessions[sessionID] = append(s.sessions[sessionID],
			record{
				ID:        uuid.NewString(),
				Role:      "user",
				Text:      fmt.Sprintf("Question number %d", i+1),
				CreatedAt: at,
			},
			record{
				ID:        uuid.NewString(),
				Role:      "assistant",
				Text:      fmt.Sprintf("A considered answer to question %d.", i+1),
				CreatedAt: at.Add(20 * time.Second),
			},
		)
	}
}

// Handler returns the routed HTTP handler with logging and recovery.
func (s *Stub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/interviewer/sessions/{session}/message", s.handleMessage)
	mux.HandleFunc("GET /api/v1/sessions/{session}/history", s.handleHistory)

	var h http.Handler = mux
	h = LoggingMiddleware(s.logger)(h)
	h = RecoveryMiddleware(s.logger)(h)
	return h
}

func (s *Stub) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// =============================================================================
// MESSAGE STREAMING
// =============================================================================

func (s *Stub) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	text := strings.TrimSpace(r.URL.Query().Get("text"))
	if text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.append(sessionID, record{
		ID:        uuid.NewString(),
		Role:      "user",
		Text:      text,
		CreatedAt: time.Now(),
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	reply := composeReply(r.URL.Query().Get("cloneId"), text)

	s.writeFrame(w, flusher, wire.Frame{Kind: wire.KindStart})

	// Stream word by word; the aggregated final follows the end frame,
	// exercising the replace-on-final path in clients.
	words := strings.SplitAfter(reply, " ")
	for _, word := range words {
		select {
		case <-r.Context().Done():
			return
		default:
		}
		s.writeFrame(w, flusher, wire.Frame{Kind: wire.KindDelta, Text: word})
		if s.opts.ReplyDelay > 0 {
			time.Sleep(s.opts.ReplyDelay)
		}
	}

	s.writeFrame(w, flusher, wire.Frame{Kind: wire.KindEnd})
	s.writeFrame(w, flusher, wire.Frame{Kind: wire.KindFinal, Text: reply})

	s.append(sessionID, record{
		ID:        uuid.NewString(),
		Role:      "assistant",
		Text:      reply,
		CreatedAt: time.Now(),
	})
}

func (s *Stub) writeFrame(w io.Writer, flusher http.Flusher, f wire.Frame) {
	data, err := wire.MarshalFrame(f)
	if err != nil {
		s.logger.Printf("drop frame: %v", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// composeReply builds the canned streamed answer.
func composeReply(cloneID, text string) string {
	speaker := "The clone"
	if cloneID != "" {
		speaker = "Clone " + cloneID
	}
	return fmt.Sprintf("%s heard you say: %s. This reply is generated locally by the chatkit stub backend, streamed a word at a time so the typewriter has something to reveal.", speaker, text)
}

// =============================================================================
// HISTORY WINDOWS
// =============================================================================

func (s *Stub) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")

	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	anchor := r.URL.Query().Get("anchorMessageId")

	s.mu.Lock()
	records := s.sessions[sessionID]
	s.mu.Unlock()

	end := len(records)
	if anchor != "" {
		end = -1
		for i, rec := range records {
			if rec.ID == anchor {
				end = i
				break
			}
		}
		if end == -1 {
			s.writeError(w, http.StatusNotFound, "anchor message not found")
			return
		}
	}

	start := end - limit
	if start < 0 {
		start = 0
	}
	items := records[start:end]

	win := window{Items: items, Page: page{
		HasBefore: start > 0,
		HasAfter:  end < len(records),
	}}
	if len(items) > 0 {
		win.Page.FirstID = items[0].ID
		win.Page.LastID = items[len(items)-1].ID
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Data    window `json:"data"`
	}{Success: true, Data: win})
}

func (s *Stub) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{Success: false, Message: msg})
}

func (s *Stub) append(sessionID string, rec record) {
	s.mu.Lock()
	s.sessions[sessionID] = append(s.sessions[sessionID], rec)
	s.mu.Unlock()
}
