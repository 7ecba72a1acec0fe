// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clonestudio/chatkit/internal/wire"
)

// DefaultIdleTimeout guards against a stalled transport that never emits
// a terminal frame. Zero disables the watchdog.
const DefaultIdleTimeout = 90 * time.Second

// sharedStreamingClient has no overall timeout: stream lifetime is
// controlled via context. Connection pooling matches the non-streaming
// history client.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// ErrIdleTimeout is the cause reported when the idle watchdog fires.
var ErrIdleTimeout = errors.New("stream idle timeout")

// =============================================================================
// ERROR TYPES
// =============================================================================

// TransportError is a connection-level failure: network drop, non-2xx
// response, or read error. Never retried automatically.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is an explicit error frame from the producer.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return "stream error"
	}
	return e.Message
}

// =============================================================================
// REQUEST AND CALLBACKS
// =============================================================================

// SubmitRequest carries one outbound message and its routing identifiers.
type SubmitRequest struct {
	SessionID string
	CloneID   string
	Text      string
}

// Handlers receives stream results. All fields are optional.
//
// OnDelta fires once per delta frame, in arrival order. OnEnd fires when
// the producer signals it is done emitting (a final may still follow).
// OnFinal fires at most once; its payload replaces, never appends to,
// whatever has been revealed. OnError fires on transport or protocol
// failure and may precede OnDone. OnDone fires exactly once when the
// session can be torn down.
//
// Handlers must not call Session.Stop from within a callback.
type Handlers struct {
	OnDelta func(text string)
	OnEnd   func()
	OnFinal func(text string)
	OnError func(err error)
	OnDone  func()
}

// Options configures a session.
type Options struct {
	// BaseURL of the backend, e.g. "https://api.clonestudio.dev".
	BaseURL string

	// HTTPClient overrides the shared pooled client. Tests use this.
	HTTPClient *http.Client

	// IdleTimeout synthesizes a transport error if no frame arrives
	// within the window. Negative disables; zero means the default.
	IdleTimeout time.Duration

	// Logger for skipped malformed frames and tool observability.
	// Nil discards.
	Logger *log.Logger
}

// =============================================================================
// SESSION
// =============================================================================

// Session is one in-flight AI reply bound to a placeholder message id.
type Session struct {
	targetID string
	handlers Handlers
	logger   *log.Logger

	cancel context.CancelFunc

	mu       sync.Mutex
	finished bool
	doneSent bool

	lastActive atomic.Int64 // unix nanos of the last received frame
}

// Open starts a session for the given target message. It never blocks:
// the transport is opened on a background goroutine and all outcomes are
// delivered via handlers. OnDone is guaranteed to fire exactly once, on
// every path.
func Open(ctx context.Context, targetID string, req SubmitRequest, h Handlers, opts Options) *Session {
	ctx, cancel := context.WithCancel(ctx)

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	s := &Session{
		targetID: targetID,
		handlers: h,
		logger:   logger,
		cancel:   cancel,
	}
	s.lastActive.Store(time.Now().UnixNano())

	client := opts.HTTPClient
	if client == nil {
		client = sharedStreamingClient
	}

	idle := opts.IdleTimeout
	if idle == 0 {
		idle = DefaultIdleTimeout
	}
	if idle > 0 {
		go s.watchIdle(ctx, idle)
	}

	go s.run(ctx, client, opts.BaseURL, req)
	return s
}

// TargetID returns the id of the placeholder message being filled.
func (s *Session) TargetID() string {
	return s.targetID
}

// Stop closes the transport and marks the session finished. Idempotent.
// If OnDone has not fired yet it fires here, so no callbacks run after
// Stop returns.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if s.finished {
		return
	}
	s.finished = true
	if !s.doneSent {
		s.doneSent = true
		if s.handlers.OnDone != nil {
			s.handlers.OnDone()
		}
	}
}

// Finished reports whether a terminal frame, transport error, or Stop has
// been observed.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// =============================================================================
// TRANSPORT LOOP
// =============================================================================

func (s *Session) run(ctx context.Context, client *http.Client, baseURL string, req SubmitRequest) {
	defer s.finish()

	httpReq, err := buildRequest(ctx, baseURL, req)
	if err != nil {
		s.emitError(&TransportError{Err: err})
		return
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return // cancelled by Stop or caller; no error surfaced
		}
		s.emitError(&TransportError{Err: err})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		s.emitError(&TransportError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)})
		return
	}

	reader := wire.NewSSEReader(resp.Body)
	for {
		_, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				// Server closed after end, or we were stopped. The
				// end-only protocol makes a clean close a valid finish.
				return
			}
			s.emitError(&TransportError{Err: err})
			return
		}

		s.lastActive.Store(time.Now().UnixNano())

		frame, perr := wire.ParseFrame(data)
		if perr != nil {
			// Forward-compatible: log and skip, never kill the stream.
			s.logger.Printf("stream %s: skipping frame: %v", s.targetID, perr)
			continue
		}

		switch frame.Kind {
		case wire.KindStart:
			// no content yet

		case wire.KindDelta:
			s.emitDelta(frame.Text)

		case wire.KindEnd:
			// Producer is done emitting; keep reading in case a final
			// follows before the server closes the connection.
			s.emitEnd()

		case wire.KindFinal:
			s.emitFinal(frame.Text)
			return

		case wire.KindError:
			msg := frame.ErrMessage
			if msg == "" {
				msg = "stream_error"
			}
			s.emitError(&ProtocolError{Message: msg})
			return

		case wire.KindToolStart, wire.KindToolEnd:
			s.logger.Printf("stream %s: %s %s", s.targetID, frame.Kind, frame.Raw)
		}
	}
}

// watchIdle cancels the session if no frame arrives within the window.
func (s *Session) watchIdle(ctx context.Context, idle time.Duration) {
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastActive.Load())
			if time.Since(last) < idle {
				continue
			}
			s.emitError(&TransportError{Err: ErrIdleTimeout})
			s.mu.Lock()
			s.finished = true
			s.mu.Unlock()
			s.cancel()
			return
		}
	}
}

// =============================================================================
// CALLBACK DISPATCH
// =============================================================================

// Emits hold the mutex while invoking handlers: once Stop (or finish)
// has run, no further callbacks can fire, and callbacks for one session
// never interleave.

func (s *Session) emitDelta(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.handlers.OnDelta != nil {
		s.handlers.OnDelta(text)
	}
}

func (s *Session) emitEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.handlers.OnEnd != nil {
		s.handlers.OnEnd()
	}
}

func (s *Session) emitFinal(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.handlers.OnFinal != nil {
		s.handlers.OnFinal(text)
	}
}

func (s *Session) emitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}

// finish marks the session done and guarantees OnDone fires exactly once.
func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	s.finished = true
	if !s.doneSent {
		s.doneSent = true
		if s.handlers.OnDone != nil {
			s.handlers.OnDone()
		}
	}
}

// buildRequest assembles the SSE submit request:
// GET {base}/api/interviewer/sessions/{sessionID}/message?text=...&cloneId=...
func buildRequest(ctx context.Context, baseURL string, req SubmitRequest) (*http.Request, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	u = u.JoinPath("api", "interviewer", "sessions", req.SessionID, "message")

	q := u.Query()
	q.Set("text", req.Text)
	q.Set("cloneId", req.CloneID)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Connection", "keep-alive")
	return httpReq, nil
}
