// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/clonestudio/chatkit/internal/client"
	"github.com/clonestudio/chatkit/internal/config"
	"github.com/clonestudio/chatkit/internal/history"
	"github.com/clonestudio/chatkit/internal/transcript"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	cfg := config.Default()
	cfg.UI.Markdown = false
	cl := client.New(client.Options{AuthorName: "Alex"})
	m := NewModel(cfg, cl, nil, nil)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func TestDefaultKeyMapBindingsComplete(t *testing.T) {
	k := DefaultKeyMap()

	if len(k.ShortHelp()) == 0 {
		t.Fatal("ShortHelp() returned no bindings")
	}
	for _, group := range k.FullHelp() {
		for _, b := range group {
			if len(b.Keys()) == 0 {
				t.Errorf("binding %q has no keys", b.Help().Desc)
			}
			if b.Help().Desc == "" {
				t.Error("binding with empty help description")
			}
		}
	}
}

func TestResizeInitializesViewport(t *testing.T) {
	m := newTestModel(t)
	if !m.ready {
		t.Fatal("model not ready after WindowSizeMsg")
	}
	if m.viewport.Width != 80 {
		t.Errorf("viewport width = %d, want 80", m.viewport.Width)
	}
	if m.viewport.Height >= 24 {
		t.Errorf("viewport height %d should leave room for chrome", m.viewport.Height)
	}
}

func TestViewportAnchorRoundTrip(t *testing.T) {
	vp := viewport.New(80, 5)
	vp.SetContent(strings.Repeat("line\n", 20))
	vp.SetYOffset(7)

	anchor := history.CaptureScroll(viewportAnchor{vp: &vp})

	// Ten lines prepended above the visible region.
	vp.SetContent(strings.Repeat("line\n", 30))
	anchor.Restore(viewportAnchor{vp: &vp})

	if vp.YOffset != 17 {
		t.Errorf("YOffset = %d after restore, want 17", vp.YOffset)
	}
}

func TestRenderMessageShowsSpeakerAndContent(t *testing.T) {
	m := newTestModel(t)

	human := transcript.NewHumanMessage("hello there", "Alex")
	out := m.renderMessage(human)
	if !strings.Contains(out, "Alex") {
		t.Errorf("human message missing author: %q", out)
	}
	if !strings.Contains(out, "hello there") {
		t.Errorf("human message missing content: %q", out)
	}

	ai := transcript.NewAIPlaceholder()
	ai.Content = "typed so far"
	out = m.renderMessage(ai)
	if !strings.Contains(out, "typed so far") {
		t.Errorf("streaming reply missing partial content: %q", out)
	}
}

func TestRenderTranscriptEmptyState(t *testing.T) {
	m := newTestModel(t)
	out := m.renderTranscript()
	if !strings.Contains(out, "No messages yet") {
		t.Errorf("empty transcript placeholder missing: %q", out)
	}
}

func TestViewContainsChrome(t *testing.T) {
	m := newTestModel(t)
	out := m.View()
	if !strings.Contains(out, "chatkit") {
		t.Error("header brand missing from view")
	}
	if !strings.Contains(out, ">") {
		t.Error("input prompt missing from view")
	}
}

func TestHelpOverlayToggle(t *testing.T) {
	m := newTestModel(t)
	m.showHelp = true
	out := m.View()
	if !strings.Contains(out, "Keyboard Shortcuts") {
		t.Error("help overlay not rendered")
	}
}

func TestSubmitEmptyInputIsNoOp(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("   ")
	updated, cmd := m.handleSubmit()
	if cmd != nil {
		t.Error("blank submit should produce no command")
	}
	if updated.client.Transcript().Len() != 0 {
		t.Error("blank submit must not append messages")
	}
}

func TestBackfillNoOpWhenExhausted(t *testing.T) {
	m := newTestModel(t)
	// Fresh paginator: nothing loaded yet, so no older history either.
	updated, cmd := m.beginBackfill()
	if cmd != nil {
		t.Error("backfill with no older history should be a no-op")
	}
	if updated.state == StateBackfill {
		t.Error("state must not enter backfill when exhausted")
	}
}

func TestCurrentStateDerivation(t *testing.T) {
	m := newTestModel(t)
	if got := m.currentState(); got != StateReady {
		t.Errorf("currentState() = %v, want StateReady", got)
	}
	m.state = StateBackfill
	if got := m.currentState(); got != StateBackfill {
		t.Errorf("currentState() = %v, want StateBackfill preserved", got)
	}
}

func TestConfigReloadAppliesDisplaySettings(t *testing.T) {
	m := newTestModel(t)
	if m.markdown != nil {
		t.Fatal("markdown renderer should start disabled")
	}

	next := config.Default()
	next.UI.Markdown = true
	next.Chat.CloneID = "ada"

	updated, cmd := m.Update(ConfigReloadedMsg{Cfg: next})
	m = updated.(Model)

	if m.cfg != next {
		t.Error("reloaded config not adopted")
	}
	if m.markdown == nil {
		t.Error("markdown renderer not rebuilt after reload")
	}
	if m.statusMsg == "" {
		t.Error("reload should surface a status line")
	}
	if cmd == nil {
		t.Error("reload should schedule follow-up commands")
	}
}

func TestWaitForReloadNilChannelIsNoOp(t *testing.T) {
	if waitForReload(nil) != nil {
		t.Error("nil reload channel must produce a nil command")
	}
}
