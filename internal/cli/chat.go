// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL for the chatkit CLI.
//
// USABILITY: Markdown rendering and history for better CLI experience
//
// Handles the plain-terminal chat mode, used when stdout is not a TTY
// or when --plain is passed. The bubbletea TUI lives in internal/ui.
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /history            Show the loaded transcript
//   /older              Load an older page of history
//   /status, /s         Show session info
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel the current reply
//   Ctrl+D              Exit chat

package cli

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/clonestudio/chatkit/internal/client"
	"github.com/clonestudio/chatkit/internal/config"
	"github.com/clonestudio/chatkit/internal/history"
	"github.com/clonestudio/chatkit/internal/storage"
	"github.com/clonestudio/chatkit/internal/transcript"
	"github.com/clonestudio/chatkit/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
// USABILITY: Supports arrow keys for history navigation and line editing.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	// Get history file path in config directory
	configDir, err := config.ConfigDir()
	if err != nil {
		// Fallback to temp directory if config dir unavailable
		configDir = os.TempDir()
	}
	historyFile := filepath.Join(configDir, "chat_history")

	cli := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}

	// Load existing history
	cli.LoadHistory()

	return cli
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
// Supports history navigation with arrow keys.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}

	// Add non-empty input to history
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}

	return input, nil
}

// SaveHistory persists input history to file with secure permissions.
// RELIABILITY: Atomic write so a crash mid-save cannot truncate the
// existing history.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}

	var buf bytes.Buffer
	if _, err := c.line.WriteHistory(&buf); err != nil {
		return
	}

	// 0600 - prompts can contain sensitive text
	util.AtomicWriteFile(c.historyFile, buf.Bytes(), 0600)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state for an interactive chat session.
type ChatSession struct {
	Config *config.Config
	Client *client.Client
	Cache  *storage.Store

	// Tracking
	StartTime time.Time
	Sent      int

	// Input history handler
	InputCLI *ChatCLI

	// Streaming echo state. The client reveals reply text through
	// OnChange callbacks on the typewriter goroutine; the printer
	// tracks how much of the in-flight message has reached stdout.
	// The same mutex guards the config pointer, which hot reload swaps.
	mu      sync.Mutex
	echoing bool
	printID string
	printed int
}

// ApplyConfig swaps in a reloaded configuration. Display settings take
// effect on the next message; connection settings need a restart because
// the client pins them at construction.
func (s *ChatSession) ApplyConfig(next *config.Config) {
	s.mu.Lock()
	s.Config = next
	s.mu.Unlock()
	fmt.Println(infoStyle.Render("[Config reloaded]"))
}

// currentConfig returns the live configuration under the session lock.
func (s *ChatSession) currentConfig() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Config
}

// NewChatSession builds a session from configuration: the sqlite cache
// when enabled, and a chat client wired to echo streamed replies.
func NewChatSession(cfg *config.Config) (*ChatSession, error) {
	session := &ChatSession{
		Config:    cfg,
		StartTime: time.Now(),
		InputCLI:  NewChatCLI(),
	}

	var cache client.MessageCache
	if cfg.Cache.Enabled {
		path, err := cfg.CachePath()
		if err == nil {
			store, storeErr := storage.Open(path)
			if storeErr != nil {
				PrintWarning("message cache unavailable: %v", storeErr)
			} else {
				session.Cache = store
				cache = store
			}
		}
	}

	session.Client = client.New(client.Options{
		BaseURL:        cfg.Server.BaseURL,
		SessionID:      cfg.Chat.SessionID,
		CloneID:        cfg.Chat.CloneID,
		AuthorName:     cfg.Chat.AuthorName,
		PageSize:       cfg.History.PageSize,
		TypingInterval: time.Duration(cfg.Typing.IntervalMs) * time.Millisecond,
		TypingBatch:    cfg.Typing.Batch,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		Cache:          cache,
		Logger:         log.Default(),
		OnChange:       session.onTranscriptChange,
	})

	return session, nil
}

// Close releases the input handler and the cache.
func (s *ChatSession) Close() {
	s.InputCLI.Close()
	if s.Cache != nil {
		s.Cache.Close()
	}
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// RunChat runs the interactive REPL until the user exits. reloads
// carries hot-reloaded configs from the file watcher; nil disables it.
func RunChat(cfg *config.Config, reloads <-chan *config.Config) error {
	session, err := NewChatSession(cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	if reloads != nil {
		go func() {
			for next := range reloads {
				session.ApplyConfig(next)
			}
		}()
	}

	printWelcome(session)

	// Pull the newest history window before the first prompt. A dead
	// backend falls back to the cache inside the client; only a total
	// miss is worth a warning.
	ctx := context.Background()
	if n, err := session.Client.LoadInitialHistory(ctx); err != nil {
		PrintWarning("history unavailable: %v", err)
	} else if n > 0 {
		fmt.Println(infoStyle.Render(fmt.Sprintf("[Loaded %d earlier messages, /history to view]", n)))
		fmt.Println()
	}

	// Set up signal handling for graceful Ctrl+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			// First Ctrl+C cancels the in-flight reply
			if session.Client.Streaming() {
				session.Client.StopStream()
				fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]"))
			}
		}
	}()

	// Main REPL loop using liner for input history
	for {
		input, err := session.InputCLI.ReadInput(promptStyle.Render("you> "))
		if err != nil {
			if err == liner.ErrPromptAborted {
				// Ctrl+C at the prompt - exit gracefully
				fmt.Println()
				printExitSummary(session)
				return nil
			}
			// EOF (Ctrl+D) or other error - exit gracefully
			fmt.Println()
			printExitSummary(session)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		// Handle slash commands
		if strings.HasPrefix(input, "/") {
			shouldContinue, err := handleSlashCommand(input, session)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !shouldContinue {
				printExitSummary(session)
				return nil
			}
			continue
		}

		// Handle exit/quit without slash
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			printExitSummary(session)
			return nil
		}

		if err := session.processMessage(ctx, input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage submits a message and blocks until the reply settles.
func (s *ChatSession) processMessage(ctx context.Context, input string) error {
	// USABILITY: Render markdown on TTY for better formatting.
	// When rendering markdown the reply is collected and rendered once
	// settled; otherwise tokens stream to stdout as they are revealed.
	useMarkdown := s.currentConfig().UI.Markdown && IsStdoutTTY()

	s.mu.Lock()
	s.echoing = !useMarkdown
	s.printID = ""
	s.printed = 0
	s.mu.Unlock()

	fmt.Println() // Space before response
	fmt.Print(aiStyle.Render("ai> "))

	_, aiID, err := s.Client.Send(ctx, input)
	if err != nil {
		fmt.Println()
		return err
	}
	s.Sent++

	// Wait for the reply to finish revealing. Ctrl+C stops the stream,
	// which finalizes the message and ends this wait.
	for s.Client.Streaming() {
		time.Sleep(25 * time.Millisecond)
	}

	s.mu.Lock()
	s.echoing = false
	already := s.printed
	s.mu.Unlock()

	final := ""
	if msg := s.Client.Transcript().Find(aiID); msg != nil {
		final = msg.Content
	}

	switch {
	case useMarkdown:
		fmt.Println()
		displayResponse(final, true)
	case already <= len(final):
		// Print whatever the streaming echo had not reached yet.
		fmt.Print(final[already:])
	default:
		// A final payload (or the error fallback) replaced the partial
		// reveal; reprint in full, wrapped for the terminal.
		fmt.Println()
		displayResponse(final, false)
	}

	fmt.Println()
	fmt.Println() // Extra space after response

	if streamErr := s.Client.LastError(); streamErr != nil {
		PrintWarning("stream error: %v", streamErr)
	}

	return nil
}

// onTranscriptChange echoes newly revealed reply text to stdout. It runs
// on whichever goroutine mutated the transcript, so state is under lock.
func (s *ChatSession) onTranscriptChange() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.echoing {
		return
	}
	msg := s.Client.Transcript().StreamingMessage()
	if msg == nil {
		return
	}
	if msg.ID != s.printID {
		s.printID = msg.ID
		s.printed = 0
	}
	if len(msg.Content) > s.printed {
		fmt.Print(msg.Content[s.printed:])
		s.printed = len(msg.Content)
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (shouldContinue, error) where shouldContinue=false means exit.
func handleSlashCommand(cmd string, session *ChatSession) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	switch strings.ToLower(parts[0]) {
	case "/help", "/h", "/?":
		printHelp()
		return true, nil

	case "/history":
		printHistory(session)
		return true, nil

	case "/older":
		return true, loadOlder(session)

	case "/status", "/s":
		printStatus(session)
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	case "/":
		// Just "/" shows help
		printHelp()
		return true, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", parts[0])
	}
}

// loadOlder fetches one older history page and reports the result.
func loadOlder(session *ChatSession) error {
	if !session.Client.HasOlderHistory() {
		fmt.Println(infoStyle.Render("[No older messages]"))
		return nil
	}
	if session.Client.HistoryState() == history.StateLoading {
		fmt.Println(infoStyle.Render("[Already loading]"))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	n, err := session.Client.LoadOlderHistory(ctx)
	if err != nil {
		return fmt.Errorf("failed to load older history: %w", err)
	}
	fmt.Println(commandStyle.Render(fmt.Sprintf("[Loaded %d older messages]", n)))
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func printWelcome(session *ChatSession) {
	cfg := session.Config

	fmt.Println()
	fmt.Println(welcomeStyle.Render("chatkit interactive chat"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Server:"),
		commandStyle.Render(cfg.Server.BaseURL))
	if cfg.Chat.CloneID != "" {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Clone:"),
			commandStyle.Render(cfg.Chat.CloneID))
	}
	if cfg.Chat.SessionID != "" {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Session:"),
			commandStyle.Render(cfg.Chat.SessionID))
	}
	if session.Cache != nil {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Cache:"),
			commandStyle.Render("Enabled (offline fallback)"))
	} else {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Cache:"),
			warningStyle.Render("Disabled"))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

// printHelp prints available commands.
func printHelp() {
	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Available Commands"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/history", "Show the loaded transcript"},
		{"/older", "Load an older page of history"},
		{"/status, /s", "Show session info"},
		{"/quit, /q", "Exit chat"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-15s", c.cmd)),
			infoStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C cancels the current reply, Ctrl+D exits"))
	fmt.Println()
}

// printStatus prints session information.
func printStatus(session *ChatSession) {
	elapsed := time.Since(session.StartTime).Round(time.Second)

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Session Status"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	fmt.Printf("  %s %s\n",
		infoStyle.Render("Server:"),
		commandStyle.Render(session.currentConfig().Server.BaseURL))
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Duration:"),
		elapsed.String())
	fmt.Printf("  %s %d loaded, %d sent this session\n",
		infoStyle.Render("Messages:"),
		session.Client.Transcript().Len(),
		session.Sent)

	if session.Client.HasOlderHistory() {
		fmt.Printf("  %s more available (/older)\n", infoStyle.Render("History:"))
	} else {
		fmt.Printf("  %s fully loaded\n", infoStyle.Render("History:"))
	}

	if err := session.Client.LastError(); err != nil {
		// Transport errors can embed whole URLs; keep the line short.
		fmt.Printf("  %s %s\n", warningStyle.Render("Last error:"),
			util.TruncateRunes(err.Error(), 120))
	}

	fmt.Println()
}

// printHistory prints the loaded transcript.
func printHistory(session *ChatSession) {
	msgs := session.Client.Transcript().Messages()
	if len(msgs) == 0 {
		fmt.Println(infoStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Conversation History"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 25)))
	fmt.Println()

	for i, msg := range msgs {
		label := msg.Role.DisplayName()
		switch msg.Role {
		case transcript.RoleHuman:
			if msg.AuthorName != "" {
				label = msg.AuthorName
			}
			label = humanStyle.Render(label)
		case transcript.RoleAI:
			label = aiStyle.Render(label)
		}

		// One line per message, truncated by display columns so CJK
		// text does not overflow the row
		content := strings.ReplaceAll(msg.Content, "\n", " ")
		content = util.TruncateWidth(content, 100)

		fmt.Printf("  %d. %s: %s\n", i+1, label, content)
	}

	fmt.Println()
}

// printExitSummary prints the session summary on exit.
func printExitSummary(session *ChatSession) {
	if session.Sent == 0 {
		fmt.Println(infoStyle.Render("Goodbye!"))
		return
	}

	elapsed := time.Since(session.StartTime).Round(time.Second)

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Session Summary"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 15)))
	fmt.Printf("  %s %d\n",
		infoStyle.Render("Messages sent:"),
		session.Sent)
	fmt.Printf("  %s %d\n",
		infoStyle.Render("Transcript size:"),
		session.Client.Transcript().Len())
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Duration:"),
		elapsed.String())

	fmt.Println()
	fmt.Println(infoStyle.Render("Goodbye!"))
}
