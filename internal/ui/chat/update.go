// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// update.go - Message handling for the chat view.

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/clonestudio/chatkit/internal/history"
)

// Update is the Bubble Tea update loop.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.handleResize(msg)

	case tea.KeyMsg:
		var cmd tea.Cmd
		m, cmd = m.handleKey(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}

	case TranscriptChangedMsg:
		m.syncViewport()
		m.state = m.currentState()
		// A settled reply releases any queued draft.
		if !m.client.Streaming() {
			cmds = append(cmds, m.sendPendingCmd())
		}
		// Re-arm the relay for the next change.
		cmds = append(cmds, waitForChange(m.changes))

	case InitialHistoryMsg:
		if msg.Err != nil {
			m.lastError = msg.Err
			m.statusMsg = "History unavailable: " + msg.Err.Error()
			cmds = append(cmds, clearStatusCmd())
		} else if msg.Added > 0 {
			m.statusMsg = fmt.Sprintf("Loaded %d earlier messages", msg.Added)
			cmds = append(cmds, clearStatusCmd())
		}
		m.syncViewport()
		m.viewport.GotoBottom()
		m.follow = true

	case OlderHistoryMsg:
		m.state = m.currentState()
		if msg.Err != nil {
			m.statusMsg = "Could not load older messages"
			cmds = append(cmds, clearStatusCmd())
			break
		}
		m.syncViewport()
		if msg.Added > 0 {
			// Keep the previously visible line under the cursor.
			m.anchor.Restore(viewportAnchor{vp: &m.viewport})
			m.follow = false
		} else {
			m.statusMsg = "Beginning of conversation"
			cmds = append(cmds, clearStatusCmd())
		}

	case SendResultMsg:
		if msg.Err != nil {
			m.lastError = msg.Err
			m.statusMsg = "Send failed: " + msg.Err.Error()
			cmds = append(cmds, clearStatusCmd())
		} else {
			m.state = StateStreaming
			m.follow = true
			m.viewport.GotoBottom()
		}

	case ConfigReloadedMsg:
		// Display settings apply immediately; connection settings are
		// pinned in the client and need a restart.
		m.cfg = msg.Cfg
		m.rebuildMarkdown()
		m.syncViewport()
		m.statusMsg = "Config reloaded"
		cmds = append(cmds, clearStatusCmd(), waitForReload(m.reloads))

	case clearStatusMsg:
		m.statusMsg = ""

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Route remaining input to the focused components.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	if _, isKey := msg.(tea.KeyMsg); !isKey {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleResize lays the components out for a new terminal size.
func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	headerHeight := 2
	inputHeight := 3
	statusHeight := 1
	vpHeight := msg.Height - headerHeight - inputHeight - statusHeight
	if vpHeight < 3 {
		vpHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.input.Width = msg.Width - 6

	m.rebuildMarkdown()
	m.syncViewport()
	if m.follow {
		m.viewport.GotoBottom()
	}
	return m
}

// handleKey dispatches keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		m.client.StopStream()
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keyMap.Submit):
		return m.handleSubmit()

	case key.Matches(msg, m.keyMap.Cancel):
		if m.client.Streaming() {
			m.client.StopStream()
			m.state = StateReady
			m.statusMsg = "Reply stopped"
			return m, clearStatusCmd()
		}
		return m, nil

	case key.Matches(msg, m.keyMap.LoadOlder):
		return m.beginBackfill()

	case key.Matches(msg, m.keyMap.PageUp):
		// Reaching the top triggers a backfill, matching infinite
		// scroll in the web client.
		if m.viewport.AtTop() {
			return m.beginBackfill()
		}
		m.follow = false
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.ViewDown()
		if m.viewport.AtBottom() {
			m.follow = true
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Up):
		m.follow = false
		m.viewport.LineUp(1)
		return m, nil

	case key.Matches(msg, m.keyMap.Down):
		m.viewport.LineDown(1)
		if m.viewport.AtBottom() {
			m.follow = true
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Home):
		m.follow = false
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keyMap.End):
		m.follow = true
		m.viewport.GotoBottom()
		return m, nil
	}

	return m, nil
}

// handleSubmit sends the composed message, or queues it while a reply
// is still revealing.
func (m Model) handleSubmit() (Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()

	if m.client.Streaming() {
		// Queue the draft; it goes out when the current reply settles.
		m.client.SetPending(text)
		m.statusMsg = "Queued - sends when the reply settles"
		return m, clearStatusCmd()
	}

	_, _, err := m.client.Send(context.Background(), text)
	if err != nil {
		m.lastError = err
		m.statusMsg = "Send failed: " + err.Error()
		return m, clearStatusCmd()
	}

	m.state = StateStreaming
	m.follow = true
	m.syncViewport()
	m.viewport.GotoBottom()
	return m, nil
}

// beginBackfill captures the scroll anchor and starts an older-page
// fetch. No-op when exhausted or already loading.
func (m Model) beginBackfill() (Model, tea.Cmd) {
	if !m.client.HasOlderHistory() || m.state == StateBackfill {
		return m, nil
	}
	m.anchor = history.CaptureScroll(viewportAnchor{vp: &m.viewport})
	m.state = StateBackfill
	return m, m.loadOlderHistoryCmd()
}

// currentState derives the view state from the client.
func (m Model) currentState() State {
	if m.state == StateBackfill {
		return StateBackfill
	}
	if m.client.Streaming() {
		return StateStreaming
	}
	return StateReady
}

// syncViewport re-renders the transcript into the viewport, keeping the
// bottom pinned while following.
func (m *Model) syncViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	if m.follow {
		m.viewport.GotoBottom()
	}
}
