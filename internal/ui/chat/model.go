// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat view.
package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/clonestudio/chatkit/internal/client"
	"github.com/clonestudio/chatkit/internal/config"
	"github.com/clonestudio/chatkit/internal/history"
	"github.com/clonestudio/chatkit/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State represents the current state of the chat view.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // A reply is arriving or revealing
	StateBackfill               // Loading an older history page
)

// statusTTL is how long transient status lines stay visible.
const statusTTL = 4 * time.Second

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view. It renders the
// transcript owned by the chat client; all mutation goes through the
// client, and change notifications come back as TranscriptChangedMsg.
type Model struct {
	// State
	state State

	// Styling
	theme *styles.Theme

	// Configuration and conversation client
	cfg    *config.Config
	client *client.Client

	// Change notifications relayed from the client's callbacks.
	changes <-chan struct{}

	// Hot-reloaded configs from the file watcher, nil when --watch is
	// off.
	reloads <-chan *config.Config

	// Dimensions
	width  int
	height int
	ready  bool

	// UI Components
	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	// Key bindings
	keyMap   KeyMap
	showHelp bool

	// Scroll behavior: follow sticks the viewport to the bottom while
	// new content arrives; scrolling up releases it.
	follow bool

	// Anchor captured before a backfill fetch, restored after prepend.
	anchor history.ScrollAnchor

	// Transient status line and last stream failure
	statusMsg string
	lastError error

	// Markdown renderer for settled AI messages, nil when disabled.
	markdown *glamour.TermRenderer
}

// NewModel creates the chat view. The changes channel carries transcript
// change signals from the client's OnChange callback, reloads carries
// hot-reloaded configs; Run wires both.
func NewModel(cfg *config.Config, cl *client.Client, changes <-chan struct{}, reloads <-chan *config.Config) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: styles.LineSpinner.Frames,
		FPS:    styles.LineSpinner.Duration(),
	}

	theme := styles.NewTheme()
	sp.Style = theme.Spinner

	return Model{
		state:   StateReady,
		theme:   theme,
		cfg:     cfg,
		client:  cl,
		changes: changes,
		reloads: reloads,
		input:   input,
		spin:    sp,
		keyMap:  DefaultKeyMap(),
		follow:  true,
	}
}

// Init starts the blink cursor, the spinner, the change relay, and the
// initial history load.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spin.Tick,
		waitForChange(m.changes),
		waitForReload(m.reloads),
		m.loadInitialHistoryCmd(),
	)
}

// =============================================================================
// COMMANDS
// =============================================================================

// waitForChange blocks on the relay channel and converts each signal
// into a TranscriptChangedMsg. Update re-issues it after every receipt.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return TranscriptChangedMsg{}
	}
}

// waitForReload blocks on the config reload channel. Update re-issues
// it after every receipt, like waitForChange.
func waitForReload(ch <-chan *config.Config) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		return ConfigReloadedMsg{Cfg: <-ch}
	}
}

// loadInitialHistoryCmd fetches the newest history window.
func (m Model) loadInitialHistoryCmd() tea.Cmd {
	cl := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		n, err := cl.LoadInitialHistory(ctx)
		return InitialHistoryMsg{Added: n, Err: err}
	}
}

// loadOlderHistoryCmd fetches the page before the earliest loaded
// message. The scroll anchor is captured by the caller before this runs.
func (m Model) loadOlderHistoryCmd() tea.Cmd {
	cl := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		n, err := cl.LoadOlderHistory(ctx)
		return OlderHistoryMsg{Added: n, Err: err}
	}
}

// sendPendingCmd submits the queued draft, if any.
func (m Model) sendPendingCmd() tea.Cmd {
	cl := m.client
	return func() tea.Msg {
		_, aiID, err := cl.SendPending(context.Background())
		if aiID == "" && err == nil {
			return nil
		}
		return SendResultMsg{AIID: aiID, Err: err}
	}
}

// clearStatusCmd expires the status line after statusTTL.
func clearStatusCmd() tea.Cmd {
	return tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

// =============================================================================
// VIEWPORT ANCHOR
// =============================================================================

// viewportAnchor adapts the bubbles viewport to the history package's
// scroll-preservation interface.
type viewportAnchor struct {
	vp *viewport.Model
}

func (a viewportAnchor) ScrollOffset() int {
	return a.vp.YOffset
}

func (a viewportAnchor) ContentHeight() int {
	return a.vp.TotalLineCount()
}

func (a viewportAnchor) SetScrollOffset(offset int) {
	a.vp.SetYOffset(offset)
}

// =============================================================================
// MARKDOWN
// =============================================================================

// rebuildMarkdown recreates the glamour renderer for the current width.
// Glamour wraps at render time, so the renderer is width-dependent.
func (m *Model) rebuildMarkdown() {
	if !m.cfg.UI.Markdown {
		m.markdown = nil
		return
	}
	wrap := m.width - 8
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		m.markdown = nil
		return
	}
	m.markdown = r
}
