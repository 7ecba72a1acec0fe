// chatkit - terminal client for clone studio chat backends.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/clonestudio/chatkit/internal/cli"
	"github.com/clonestudio/chatkit/internal/config"
	"github.com/clonestudio/chatkit/internal/server"
	"github.com/clonestudio/chatkit/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// options holds the parsed command line.
type options struct {
	configPath string
	plain      bool
	watch      bool
	demo       bool
	verbose    bool

	// config overrides
	server  string
	session string
	clone   string
	author  string
	noCache bool
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(2)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	setupLogging(opts.verbose)

	if opts.demo {
		if err := startDemoBackend(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Optional live reload of the config file. Saves are atomic
	// renames, so the watcher tracks the parent directory. Reloads are
	// delivered to the running front-end; a coalescing slot is enough
	// because only the newest config matters.
	var reloads chan *config.Config
	if opts.watch {
		path := opts.configPath
		if path == "" {
			if path, err = config.ConfigPath(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
		ch := make(chan *config.Config, 1)
		watcher, err := config.NewWatcher(path, func(next *config.Config) {
			select {
			case <-ch:
			default:
			}
			ch <- next
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: config watch unavailable: %v\n", err)
		} else if err := watcher.Watch(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: config watch unavailable: %v\n", err)
		} else {
			defer watcher.Close()
			reloads = ch
		}
	}

	// The TUI needs a real terminal on both ends; otherwise fall back
	// to the liner REPL, which degrades cleanly when piped.
	if opts.plain || !cli.IsTTY() || !cli.IsStdoutTTY() {
		err = cli.RunChat(cfg, reloads)
	} else {
		err = chat.Run(cfg, reloads)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and applies command-line overrides.
// Precedence: flags > environment > file > defaults.
func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.configPath != "" {
		cfg, err = config.LoadFromPath(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.server != "" {
		cfg.Server.BaseURL = opts.server
	}
	if opts.session != "" {
		cfg.Chat.SessionID = opts.session
	}
	if opts.clone != "" {
		cfg.Chat.CloneID = opts.clone
	}
	if opts.author != "" {
		cfg.Chat.AuthorName = opts.author
	}
	if opts.noCache {
		cfg.Cache.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseArgs parses the command line into options.
func parseArgs(args []string) (options, error) {
	var opts options

	for i := 0; i < len(args); i++ {
		arg := args[i]

		// Flags that take a value
		value := func() (string, error) {
			i++
			if i >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			return args[i], nil
		}

		var err error
		switch arg {
		case "--plain", "-p":
			opts.plain = true
		case "--watch", "-w":
			opts.watch = true
		case "--no-cache":
			opts.noCache = true
		case "--demo":
			opts.demo = true
		case "--verbose", "-v":
			opts.verbose = true
		case "--config", "-c":
			opts.configPath, err = value()
		case "--server":
			opts.server, err = value()
		case "--session", "-s":
			opts.session, err = value()
		case "--clone":
			opts.clone, err = value()
		case "--author", "-a":
			opts.author, err = value()
		case "--version", "-V":
			printVersion()
			os.Exit(0)
		case "--help", "-h":
			printUsage()
			os.Exit(0)
		default:
			return opts, fmt.Errorf("unknown flag: %s", arg)
		}
		if err != nil {
			return opts, err
		}
	}

	return opts, nil
}

// setupLogging routes the default logger to a file under the config
// directory. Quiet by default; --verbose echoes to stderr as well. The
// TUI owns the terminal, so stderr chatter is only useful in plain mode
// or when the output is redirected.
func setupLogging(verbose bool) {
	log.SetFlags(log.LstdFlags)

	var out io.Writer = io.Discard
	if dir, err := config.ConfigDir(); err == nil && config.EnsureConfigDir() == nil {
		f, err := os.OpenFile(filepath.Join(dir, "chatkit.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err == nil {
			out = f
		}
	}
	if verbose {
		if out == io.Discard {
			out = os.Stderr
		} else {
			out = io.MultiWriter(out, os.Stderr)
		}
	}
	log.SetOutput(out)
}

// startDemoBackend runs the stub backend on a loopback port and points
// the configuration at it. The demo session comes pre-seeded so history
// pagination has pages to load.
func startDemoBackend(cfg *config.Config) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to start demo backend: %w", err)
	}

	stub := server.NewStub(server.Options{})
	if cfg.Chat.SessionID == "" {
		cfg.Chat.SessionID = "demo"
	}
	stub.Seed(cfg.Chat.SessionID, 40)

	go http.Serve(ln, stub.Handler())

	cfg.Server.BaseURL = "http://" + ln.Addr().String()
	// Demo conversations should not shadow real ones in the cache.
	cfg.Cache.Enabled = false
	return nil
}

func printVersion() {
	fmt.Printf("chatkit %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}

func printUsage() {
	fmt.Print(`chatkit - terminal client for clone studio chat backends

Usage:
  chatkit [flags]

Flags:
  -p, --plain          Use the plain REPL instead of the TUI
  -w, --watch          Reload the config file when it changes
  -c, --config PATH    Config file (default ~/.chatkit/config.toml)
      --server URL     Backend base URL
  -s, --session ID     Chat session id
      --clone ID       Clone (persona) id
  -a, --author NAME    Display name for your messages
      --no-cache       Disable the offline message cache
      --demo           Run against a local stub backend
  -v, --verbose        Echo the log to stderr
  -V, --version        Print version and exit
  -h, --help           Show this help

Environment:
  CHATKIT_BASE_URL, CHATKIT_SESSION, CHATKIT_CLONE, CHATKIT_AUTHOR,
  CHATKIT_PAGE_SIZE, CHATKIT_NO_CACHE, CHATKIT_THEME override the
  config file; flags override both.
`)
}
