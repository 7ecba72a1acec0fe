// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/clonestudio/chatkit/internal/transcript"
)

// DefaultTimeout bounds one history fetch.
const DefaultTimeout = 15 * time.Second

// sharedHTTPClient pools connections for history fetches.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// WINDOW TYPES
// =============================================================================

// Record is one raw history entry. The backend has emitted two field
// generations: role/text currently, type/content in legacy rows. Both are
// accepted.
type Record struct {
	ID        string    `json:"id"`
	Role      string    `json:"role,omitempty"`
	Type      string    `json:"type,omitempty"` // legacy role field
	Text      string    `json:"text,omitempty"`
	Content   string    `json:"content,omitempty"` // legacy text field
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// RoleValue returns the effective role indicator.
func (r Record) RoleValue() string {
	if r.Role != "" {
		return r.Role
	}
	return r.Type
}

// TextValue returns the effective message text.
func (r Record) TextValue() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Content
}

// Page carries the window boundaries and continuation flags.
type Page struct {
	FirstID   string `json:"firstId"`
	LastID    string `json:"lastId"`
	HasBefore bool   `json:"hasBefore"`
	HasAfter  bool   `json:"hasAfter"`
}

// Window is the result of one pagination fetch: records ordered oldest to
// newest within the window.
type Window struct {
	Items []Record `json:"items"`
	Page  Page     `json:"page"`
}

// envelope is the backend's standard response wrapper.
type envelope struct {
	Success bool    `json:"success"`
	Data    *Window `json:"data"`
	Message string  `json:"message"`
}

// FetchParams selects one window.
type FetchParams struct {
	Limit            int
	IncludeAssistant bool

	// AnchorMessageID (or legacy AnchorTurnID) plus Direction select a
	// window relative to an already-loaded message. Empty anchors fetch
	// the newest window.
	AnchorMessageID string
	AnchorTurnID    string
	Direction       string // "before" | "after"
}

// =============================================================================
// CLIENT
// =============================================================================

// Client fetches history windows from the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a history client. httpClient may be nil to use the
// shared pooled client. Fetches are throttled to keep top-of-scroll
// jitter from hammering the backend.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = sharedHTTPClient
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		// Burst of 3 covers initial load plus an eager scroll; steady
		// state is two fetches per second.
		limiter: rate.NewLimiter(rate.Limit(2), 3),
	}
}

// FetchWindow retrieves one window of session history.
func (c *Client) FetchWindow(ctx context.Context, sessionID string, params FetchParams) (*Window, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	u = u.JoinPath("api", "v1", "sessions", sessionID, "history")

	q := u.Query()
	q.Set("limit", strconv.Itoa(params.Limit))
	q.Set("includeAssistant", strconv.FormatBool(params.IncludeAssistant))
	if params.AnchorMessageID != "" {
		q.Set("anchorMessageId", params.AnchorMessageID)
	}
	if params.AnchorTurnID != "" {
		q.Set("anchorTurnId", params.AnchorTurnID)
	}
	if params.Direction != "" {
		q.Set("direction", params.Direction)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("history fetch failed: unexpected status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("history fetch failed: %w", err)
	}
	if env.Data == nil {
		if env.Message != "" {
			return nil, fmt.Errorf("history fetch failed: %s", env.Message)
		}
		return nil, fmt.Errorf("history fetch failed: empty response")
	}
	return env.Data, nil
}

// =============================================================================
// RECORD MAPPING
// =============================================================================

// MapRecords converts raw history records to transcript messages.
// authorName labels human messages; assistant messages carry none.
func MapRecords(items []Record, authorName string) []*transcript.Message {
	msgs := make([]*transcript.Message, 0, len(items))
	for _, it := range items {
		role := transcript.RoleHuman
		name := authorName
		if it.RoleValue() == "assistant" {
			role = transcript.RoleAI
			name = ""
		}
		created := it.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		msgs = append(msgs, &transcript.Message{
			ID:         it.ID,
			Role:       role,
			Content:    it.TextValue(),
			CreatedAt:  created,
			AuthorName: name,
		})
	}
	return msgs
}
