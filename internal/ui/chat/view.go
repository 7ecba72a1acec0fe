// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// view.go - Rendering for the chat view.

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/clonestudio/chatkit/internal/history"
	"github.com/clonestudio/chatkit/internal/transcript"
	"github.com/clonestudio/chatkit/internal/ui/styles"
)

// View renders the full chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	b.WriteString(m.renderInput())
	b.WriteByte('\n')
	b.WriteString(m.renderStatusBar())
	return b.String()
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderBrand.Render("chatkit")

	subtitle := m.cfg.Chat.CloneID
	if subtitle == "" {
		subtitle = m.cfg.Server.BaseURL
	}
	sub := m.theme.HeaderSubtitle.Render(subtitle)

	gap := m.width - lipgloss.Width(title) - lipgloss.Width(sub) - 2
	if gap < 1 {
		gap = 1
	}
	line := " " + title + strings.Repeat(" ", gap) + sub

	return m.theme.StatusBar.Width(m.width).Render(line)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders every loaded message, oldest first.
func (m Model) renderTranscript() string {
	msgs := m.client.Transcript().Messages()
	if len(msgs) == 0 {
		empty := m.theme.HistoryDone.Width(m.viewport.Width).
			Render("No messages yet. Say hello!")
		return "\n" + empty
	}

	var b strings.Builder

	if !m.client.HasOlderHistory() {
		b.WriteString(m.theme.HistoryDone.Width(m.viewport.Width).
			Render("- start of conversation -"))
		b.WriteString("\n\n")
	} else if m.state == StateBackfill {
		b.WriteString(m.theme.HistoryLoading.Width(m.viewport.Width).
			Render("loading older messages" + styles.DotsSpinner.Frames[0]))
		b.WriteString("\n\n")
	}

	for i, msg := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.renderMessage(msg))
		b.WriteByte('\n')
	}
	return b.String()
}

// renderMessage renders one message: a speaker line, then the body in
// the role's bubble.
func (m Model) renderMessage(msg *transcript.Message) string {
	bubbleWidth := m.viewport.Width - 8
	if bubbleWidth < 16 {
		bubbleWidth = 16
	}

	var speaker, body string
	switch msg.Role {
	case transcript.RoleHuman:
		name := msg.AuthorName
		if name == "" {
			name = msg.Role.DisplayName()
		}
		speaker = m.theme.SpeakerHuman.Render(name)
		body = m.theme.HumanBubble.MaxWidth(bubbleWidth).Render(msg.Content)
	case transcript.RoleAI:
		speaker = m.theme.SpeakerAI.Render(msg.Role.DisplayName())
		body = m.theme.AIBubble.MaxWidth(bubbleWidth).Render(m.renderAIContent(msg))
	default:
		speaker = m.theme.Timestamp.Render(msg.Role.DisplayName())
		body = m.theme.SystemBubble.MaxWidth(bubbleWidth).Render(msg.Content)
	}

	stamp := m.theme.Timestamp.Render(msg.CreatedAt.Format("15:04"))
	return speaker + " " + stamp + "\n" + body
}

// renderAIContent returns the reply body. Settled replies get markdown
// rendering when enabled; a revealing reply stays plain with a cursor,
// since partial markdown renders badly.
func (m Model) renderAIContent(msg *transcript.Message) string {
	if msg.Streaming {
		if msg.Content == "" {
			return m.theme.TypingDots.Render("...")
		}
		return msg.Content + m.theme.TypingDots.Render(styles.TypingCursor[0])
	}
	if m.markdown != nil {
		if rendered, err := m.markdown.Render(msg.Content); err == nil {
			return strings.TrimRight(rendered, "\n")
		}
	}
	return msg.Content
}

// =============================================================================
// INPUT AND STATUS
// =============================================================================

func (m Model) renderInput() string {
	prompt := m.theme.InputPrompt.Render("> ")
	return m.theme.InputContainer.Width(m.width).Render(prompt + m.input.View())
}

func (m Model) renderStatusBar() string {
	var mode string
	switch m.state {
	case StateStreaming:
		mode = m.theme.ModeStreaming.Render(m.spin.View() + " streaming")
	case StateBackfill:
		mode = m.theme.ModeStreaming.Render(m.spin.View() + " history")
	default:
		if m.lastError != nil {
			mode = m.theme.ModeOffline.Render(styles.StatusIndicators.Warning + " degraded")
		} else {
			mode = m.theme.ModeConnected.Render(styles.StatusIndicators.Active + " ready")
		}
	}

	middle := m.statusMsg
	if middle == "" && m.client.HistoryState() == history.StateLoading {
		middle = "loading history"
	}

	shortcuts := m.renderShortcuts()

	gap := m.width - lipgloss.Width(mode) - lipgloss.Width(middle) - lipgloss.Width(shortcuts) - 4
	if gap < 1 {
		gap = 1
	}

	line := fmt.Sprintf(" %s  %s%s%s ", mode, middle, strings.Repeat(" ", gap), shortcuts)
	return m.theme.StatusBar.Width(m.width).Render(line)
}

func (m Model) renderShortcuts() string {
	var parts []string
	for _, binding := range m.keyMap.ShortHelp() {
		h := binding.Help()
		parts = append(parts,
			m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}

// =============================================================================
// HELP OVERLAY
// =============================================================================

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Keyboard Shortcuts"))
	b.WriteString("\n\n")

	groups := []string{"Navigation", "Go to", "Actions"}
	for i, group := range m.keyMap.FullHelp() {
		if i < len(groups) {
			b.WriteString(m.theme.HeaderSubtitle.Render(groups[i]))
			b.WriteByte('\n')
		}
		for _, binding := range group {
			h := binding.Help()
			b.WriteString(fmt.Sprintf("  %s  %s\n",
				m.theme.ShortcutKey.Render(fmt.Sprintf("%-12s", h.Key)),
				m.theme.ShortcutDesc.Render(h.Desc)))
		}
		b.WriteByte('\n')
	}

	b.WriteString(m.theme.HeaderSubtitle.Render("Press C-/ to close"))
	return m.theme.Container.Render(b.String())
}
