// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading for chatkit.
//
// Supports TOML configuration with sensible defaults, environment
// variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.chatkit/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/clonestudio/chatkit/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatkit configuration.
type Config struct {
	Version string `toml:"version"`

	// Server connection settings
	Server ServerConfig `toml:"server"`

	// Chat session settings
	Chat ChatConfig `toml:"chat"`

	// Typing reveal settings
	Typing TypingConfig `toml:"typing"`

	// History pagination settings
	History HistoryConfig `toml:"history"`

	// Cache settings
	Cache CacheConfig `toml:"cache"`

	// UI settings
	UI UIConfig `toml:"ui"`
}

// ServerConfig contains backend connection configuration.
type ServerConfig struct {
	// BaseURL is the backend root, e.g. "https://api.clonestudio.dev"
	BaseURL string `toml:"base_url"`
	// IdleTimeoutSecs aborts a stream that produces no frames for this
	// long. 0 uses the built-in default; negative disables.
	IdleTimeoutSecs int `toml:"idle_timeout_secs"`
}

// ChatConfig contains conversation identity configuration.
type ChatConfig struct {
	// SessionID is the conversation to open on startup
	SessionID string `toml:"session_id"`
	// CloneID selects which persona answers
	CloneID string `toml:"clone_id"`
	// AuthorName labels the human side of the transcript
	AuthorName string `toml:"author_name"`
}

// TypingConfig tunes the character reveal cadence.
type TypingConfig struct {
	// IntervalMs between reveal ticks. 0 uses the built-in default.
	IntervalMs int `toml:"interval_ms"`
	// Batch is the number of characters revealed per tick
	Batch int `toml:"batch"`
}

// HistoryConfig contains pagination configuration.
type HistoryConfig struct {
	// PageSize is the number of messages per history window
	PageSize int `toml:"page_size"`
}

// CacheConfig contains the offline message cache configuration.
type CacheConfig struct {
	// Enabled controls whether the sqlite cache is active
	Enabled bool `toml:"enabled"`
	// Path to the cache database (empty = ~/.chatkit/messages.db)
	Path string `toml:"path"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// Markdown renders finished replies through the markdown renderer
	Markdown bool `toml:"markdown"`
	// CompactMode uses a tighter message layout
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			BaseURL:         "http://127.0.0.1:3000",
			IdleTimeoutSecs: 90,
		},

		Chat: ChatConfig{
			AuthorName: "You",
		},

		Typing: TypingConfig{
			IntervalMs: 20,
			Batch:      1,
		},

		History: HistoryConfig{
			PageSize: 30,
		},

		Cache: CacheConfig{
			Enabled: true,
		},

		UI: UIConfig{
			Theme:       "dark",
			Markdown:    true,
			CompactMode: false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chatkit configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatkit"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CachePath resolves the cache database path, honoring the configured
// override.
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return c.Cache.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "messages.db"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD AND SAVE
// =============================================================================

// Load loads configuration from the default config file, falling back
// to defaults when it does not exist. Environment overrides are applied
// last, then the result is validated.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with full
// validation. A missing file is not an error; defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath saves the configuration to a TOML file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
func SaveToPath(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# chatkit configuration file")
	fmt.Fprintln(&buf, "# Generated by chatkit - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0755); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.BaseURL != "" {
		u, err := url.Parse(c.Server.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, ValidationError{
				Field:   "server.base_url",
				Message: fmt.Sprintf("invalid URL '%s', must be http or https", c.Server.BaseURL),
			})
		}
	}

	if c.Typing.IntervalMs < 0 || c.Typing.IntervalMs > 1000 {
		errs = append(errs, ValidationError{
			Field:   "typing.interval_ms",
			Message: fmt.Sprintf("must be 0-1000, got %d", c.Typing.IntervalMs),
		})
	}
	if c.Typing.Batch < 0 || c.Typing.Batch > 256 {
		errs = append(errs, ValidationError{
			Field:   "typing.batch",
			Message: fmt.Sprintf("must be 0-256, got %d", c.Typing.Batch),
		})
	}

	if c.History.PageSize < 1 || c.History.PageSize > 200 {
		errs = append(errs, ValidationError{
			Field:   "history.page_size",
			Message: fmt.Sprintf("must be 1-200, got %d", c.History.PageSize),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills in missing or zero-value fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = defaults.Server.BaseURL
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = defaults.Server.IdleTimeoutSecs
	}
	if c.Chat.AuthorName == "" {
		c.Chat.AuthorName = defaults.Chat.AuthorName
	}
	if c.Typing.IntervalMs == 0 {
		c.Typing.IntervalMs = defaults.Typing.IntervalMs
	}
	if c.Typing.Batch == 0 {
		c.Typing.Batch = defaults.Typing.Batch
	}
	if c.History.PageSize == 0 {
		c.History.PageSize = defaults.History.PageSize
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - CHATKIT_BASE_URL: overrides server.base_url
//   - CHATKIT_SESSION: overrides chat.session_id
//   - CHATKIT_CLONE: overrides chat.clone_id
//   - CHATKIT_AUTHOR: overrides chat.author_name
//   - CHATKIT_PAGE_SIZE: overrides history.page_size
//   - CHATKIT_NO_CACHE: set to "1" or "true" to disable the cache
//   - CHATKIT_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	if baseURL := os.Getenv("CHATKIT_BASE_URL"); baseURL != "" {
		c.Server.BaseURL = baseURL
	}
	if session := os.Getenv("CHATKIT_SESSION"); session != "" {
		c.Chat.SessionID = session
	}
	if clone := os.Getenv("CHATKIT_CLONE"); clone != "" {
		c.Chat.CloneID = clone
	}
	if author := os.Getenv("CHATKIT_AUTHOR"); author != "" {
		c.Chat.AuthorName = author
	}
	if pageSize := os.Getenv("CHATKIT_PAGE_SIZE"); pageSize != "" {
		if n, err := strconv.Atoi(pageSize); err == nil {
			c.History.PageSize = n
		}
	}
	if noCache := os.Getenv("CHATKIT_NO_CACHE"); noCache != "" {
		if noCache == "1" || strings.ToLower(noCache) == "true" {
			c.Cache.Enabled = false
		}
	}
	if theme := os.Getenv("CHATKIT_THEME"); theme != "" {
		c.UI.Theme = theme
	}
}
