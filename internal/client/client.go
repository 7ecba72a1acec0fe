// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/clonestudio/chatkit/internal/history"
	"github.com/clonestudio/chatkit/internal/stream"
	"github.com/clonestudio/chatkit/internal/transcript"
	"github.com/clonestudio/chatkit/internal/typewriter"
)

// Fallback texts shown in place of a reply when the stream fails. An
// explicit error frame from the producer reads differently from a
// connection that dropped or never worked.
const (
	FallbackErrorText   = "Sorry, I encountered an error. Please try again."
	FallbackConnectText = "Sorry, I couldn't connect. Please try again."
)

// DefaultPageSize is the history window size when none is configured.
const DefaultPageSize = 30

// ErrEmptyMessage rejects a blank or whitespace-only submission.
var ErrEmptyMessage = errors.New("empty message")

// MessageCache persists transcript messages for offline fallback. The
// sqlite store implements it; nil disables caching.
type MessageCache interface {
	SaveMessages(ctx context.Context, sessionID string, msgs []*transcript.Message) error
	LoadRecent(ctx context.Context, sessionID string, limit int) ([]*transcript.Message, error)
}

// Options configures a chat client.
type Options struct {
	// BaseURL of the backend, e.g. "https://api.clonestudio.dev".
	BaseURL string

	// SessionID routes submissions and history fetches.
	SessionID string

	// CloneID selects which persona answers.
	CloneID string

	// AuthorName labels the human side of the conversation.
	AuthorName string

	// PageSize is the history window size. Zero means the default.
	PageSize int

	// TypingInterval and TypingBatch tune the reveal cadence. Zero
	// values mean the typewriter defaults.
	TypingInterval time.Duration
	TypingBatch    int

	// IdleTimeout for the stream watchdog. Zero means the stream
	// default; negative disables.
	IdleTimeout time.Duration

	// HTTPClient overrides the shared pooled clients. Tests use this.
	HTTPClient *http.Client

	// Logger for diagnostics. Nil discards.
	Logger *log.Logger

	// Cache enables offline history fallback. May be nil.
	Cache MessageCache

	// OnChange fires after every transcript mutation, on whichever
	// goroutine performed it. UIs use it to schedule a redraw. It must
	// not call back into the client.
	OnChange func()

	// OnStreamError fires when a stream fails, after the fallback text
	// has been applied. May be nil.
	OnStreamError func(err error)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the conversation facade: one transcript, at most one live
// stream session, and a paginator for backfill. All methods are safe for
// concurrent use.
type Client struct {
	opts   Options
	tr     *transcript.Transcript
	pag    *history.Paginator
	logger *log.Logger

	mu       sync.Mutex
	session  *stream.Session
	buffer   *typewriter.Buffer
	targetID string
	pending  string
	lastErr  error
}

// New creates a client. Options without a BaseURL and SessionID will not
// reach a backend, but the transcript still works locally.
func New(opts Options) *Client {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	tr := transcript.New()
	return &Client{
		opts:   opts,
		tr:     tr,
		pag:    history.NewPaginator(history.NewClient(opts.BaseURL, opts.HTTPClient), tr, opts.AuthorName),
		logger: logger,
	}
}

// Transcript exposes the underlying message store for rendering.
func (c *Client) Transcript() *transcript.Transcript {
	return c.tr
}

// Streaming reports whether a reply is still arriving or being revealed.
func (c *Client) Streaming() bool {
	return c.tr.StreamingMessage() != nil
}

// LastError returns the most recent stream failure, or nil.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// =============================================================================
// SENDING
// =============================================================================

// Send submits a message. Any in-flight reply is stopped first: its
// buffered text is revealed immediately and its message finalized before
// the new session produces a single callback. Returns the ids of the
// appended human message and AI placeholder.
func (c *Client) Send(ctx context.Context, text string) (humanID, aiID string, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", ErrEmptyMessage
	}

	c.StopStream()

	human := transcript.NewHumanMessage(text, c.opts.AuthorName)
	if err := c.tr.Append(human); err != nil {
		return "", "", err
	}
	placeholder := transcript.NewAIPlaceholder()
	if err := c.tr.Append(placeholder); err != nil {
		return human.ID, "", err
	}
	c.notify()

	buf := typewriter.NewWithConfig(
		func(chunk string) {
			c.tr.AppendContent(placeholder.ID, chunk)
			c.notify()
		},
		func() {
			// Typing fully caught up after the stream ended.
			c.tr.Finalize(placeholder.ID)
			c.notify()
			c.saveToCache()
		},
		c.opts.TypingInterval,
		c.opts.TypingBatch,
	)

	handlers := stream.Handlers{
		OnDelta: func(t string) {
			buf.Push(t)
		},
		OnEnd: func() {
			buf.MarkStreamDone()
		},
		OnFinal: func(finalText string) {
			// The final payload replaces whatever was revealed.
			buf.Flush()
			c.tr.SetContent(placeholder.ID, finalText)
			c.tr.Finalize(placeholder.ID)
			c.notify()
			c.saveToCache()
		},
		OnError: func(streamErr error) {
			buf.Flush()
			// The fallback replaces any partial reveal: a reply cut
			// off mid-sentence must not read as complete.
			text := FallbackConnectText
			var perr *stream.ProtocolError
			if errors.As(streamErr, &perr) {
				text = FallbackErrorText
			}
			c.tr.SetContent(placeholder.ID, text)
			c.tr.Finalize(placeholder.ID)
			c.mu.Lock()
			c.lastErr = streamErr
			c.mu.Unlock()
			c.notify()
			c.logger.Printf("stream failed: %v", streamErr)
			if c.opts.OnStreamError != nil {
				c.opts.OnStreamError(streamErr)
			}
		},
		OnDone: func() {
			// Transport torn down; let the typewriter finish revealing
			// at its own cadence, then detach this session.
			buf.MarkStreamDone()
			c.detach(placeholder.ID)
		},
	}

	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()

	sess := stream.Open(ctx, placeholder.ID, stream.SubmitRequest{
		SessionID: c.opts.SessionID,
		CloneID:   c.opts.CloneID,
		Text:      text,
	}, handlers, stream.Options{
		BaseURL:     c.opts.BaseURL,
		HTTPClient:  c.opts.HTTPClient,
		IdleTimeout: c.opts.IdleTimeout,
		Logger:      c.logger,
	})

	c.mu.Lock()
	c.session = sess
	c.buffer = buf
	c.targetID = placeholder.ID
	c.mu.Unlock()
	return human.ID, placeholder.ID, nil
}

// StopStream cancels the in-flight reply, if any. Remaining buffered
// text is revealed immediately and the target message is finalized with
// whatever content it has. Idempotent.
func (c *Client) StopStream() {
	c.mu.Lock()
	sess, buf, target := c.session, c.buffer, c.targetID
	c.session, c.buffer, c.targetID = nil, nil, ""
	c.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}
	if buf != nil {
		buf.Flush()
	}
	if target != "" {
		c.tr.Finalize(target)
		c.notify()
		c.saveToCache()
	}
}

// SetPending stores a draft to submit later, replacing any previous one.
// UIs use it when the user types while a reply is still revealing.
func (c *Client) SetPending(text string) {
	c.mu.Lock()
	c.pending = text
	c.mu.Unlock()
}

// SendPending submits the stored draft, if any, and clears it.
func (c *Client) SendPending(ctx context.Context) (humanID, aiID string, err error) {
	c.mu.Lock()
	text := c.pending
	c.pending = ""
	c.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return "", "", nil
	}
	return c.Send(ctx, text)
}

// detach clears the session slot if it still targets the given message.
// A newer Send may already have replaced it, or the slot may not have
// been filled yet when the session failed instantly; either way clearing
// the wrong session would be worse than leaving a finished one, which
// StopStream handles harmlessly.
func (c *Client) detach(targetID string) {
	c.mu.Lock()
	if c.targetID == targetID {
		c.session = nil
		c.buffer = nil
		c.targetID = ""
	}
	c.mu.Unlock()
}

// =============================================================================
// HISTORY
// =============================================================================

// LoadInitialHistory fetches the newest window into the transcript. When
// the fetch fails and a cache is configured, cached messages are served
// instead and the fetch error is only logged; with no cache (or an empty
// one) the error is returned.
func (c *Client) LoadInitialHistory(ctx context.Context) (int, error) {
	added, err := c.pag.LoadInitial(ctx, c.opts.SessionID, c.opts.PageSize)
	if err == nil {
		c.notify()
		c.saveToCache()
		return added, nil
	}

	if c.opts.Cache == nil {
		return 0, err
	}
	cached, cacheErr := c.opts.Cache.LoadRecent(ctx, c.opts.SessionID, c.opts.PageSize)
	if cacheErr != nil || len(cached) == 0 {
		return 0, err
	}
	c.logger.Printf("history fetch failed, serving %d cached messages: %v", len(cached), err)
	n := c.tr.PrependWindow(cached)
	c.notify()
	return n, nil
}

// LoadOlderHistory fetches and prepends the window before the earliest
// loaded message. No-op when exhausted or already loading.
func (c *Client) LoadOlderHistory(ctx context.Context) (int, error) {
	added, err := c.pag.LoadOlder(ctx)
	if err != nil {
		return 0, err
	}
	if added > 0 {
		c.notify()
		c.saveToCache()
	}
	return added, nil
}

// HasOlderHistory reports whether more backfill remains.
func (c *Client) HasOlderHistory() bool {
	return c.pag.HasBefore()
}

// HistoryState returns the paginator state, for spinner display.
func (c *Client) HistoryState() history.State {
	return c.pag.State()
}

// =============================================================================
// INTERNAL
// =============================================================================

func (c *Client) notify() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}

// saveToCache writes the current transcript through to the cache.
// Best effort: failures are logged, never surfaced.
func (c *Client) saveToCache() {
	if c.opts.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.opts.Cache.SaveMessages(ctx, c.opts.SessionID, c.tr.Messages()); err != nil {
		c.logger.Printf("cache save failed: %v", err)
	}
}
