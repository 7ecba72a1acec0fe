// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// run.go - Program wiring for the chat TUI.

package chat

import (
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/clonestudio/chatkit/internal/client"
	"github.com/clonestudio/chatkit/internal/config"
	"github.com/clonestudio/chatkit/internal/storage"
)

// Run builds the client from configuration and runs the TUI until the
// user quits. reloads carries hot-reloaded configs from the file
// watcher; nil disables it.
func Run(cfg *config.Config, reloads <-chan *config.Config) error {
	var cache client.MessageCache
	var store *storage.Store
	if cfg.Cache.Enabled {
		if path, err := cfg.CachePath(); err == nil {
			s, openErr := storage.Open(path)
			if openErr != nil {
				fmt.Fprintf(os.Stderr, "message cache unavailable: %v\n", openErr)
			} else {
				store = s
				cache = s
			}
		}
	}
	if store != nil {
		defer store.Close()
	}

	// Transcript changes arrive on client goroutines; relay them into
	// the Bubble Tea loop through a coalescing channel. A buffered slot
	// is enough because every TranscriptChangedMsg re-reads the whole
	// transcript.
	changes := make(chan struct{}, 1)

	cl := client.New(client.Options{
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
		OnChange: func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		},
	})
	defer cl.StopStream()

	p := tea.NewProgram(NewModel(cfg, cl, changes, reloads), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat interface failed: %w", err)
	}
	return nil
}
