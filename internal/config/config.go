// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/pocketchat/internal/client"
	"github.com/jeranaias/pocketchat/internal/util"
	"github.com/jeranaias/pocketchat/internal/validate"
)

// CurrentVersion is written to new config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete pocketchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Chat server connection
	Server ServerConfig `toml:"server" json:"server"`

	// Retry policy for non-streaming requests
	Retry RetryConfig `toml:"retry" json:"retry"`

	// Model and sampling defaults
	Generation GenerationConfig `toml:"generation" json:"generation"`

	// Health check settings
	Health HealthConfig `toml:"health" json:"health"`

	// Conversation storage
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Logging
	Log LogConfig `toml:"log" json:"log"`

	// Terminal output
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServerConfig contains chat server connection settings.
type ServerConfig struct {
	// URL is the base URL of the OpenAI-compatible server
	URL string `toml:"url" json:"url"`
	// Timeout bounds each non-streaming request attempt
	Timeout Duration `toml:"timeout" json:"timeout"`
	// StreamTimeout bounds a whole streaming reply
	StreamTimeout Duration `toml:"stream_timeout" json:"stream_timeout"`
	// Headers are sent with every request
	Headers map[string]string `toml:"headers,omitempty" json:"headers,omitempty"`
	// RequestsPerSecond limits outgoing requests (0 = unlimited)
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
}

// RetryConfig contains the retry policy.
type RetryConfig struct {
	MaxRetries        int      `toml:"max_retries" json:"max_retries"`
	InitialDelay      Duration `toml:"initial_delay" json:"initial_delay"`
	MaxDelay          Duration `toml:"max_delay" json:"max_delay"`
	BackoffMultiplier float64  `toml:"backoff_multiplier" json:"backoff_multiplier"`
}

// GenerationConfig contains model and sampling defaults.
// Nil sampling values are left to the server.
type GenerationConfig struct {
	DefaultModel     string   `toml:"default_model" json:"default_model"`
	Temperature      *float64 `toml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens        *int     `toml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	TopP             *float64 `toml:"top_p,omitempty" json:"top_p,omitempty"`
	MaxMessageLength int      `toml:"max_message_length" json:"max_message_length"`
	SystemPrompt     string   `toml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
}

// HealthConfig contains health check settings.
type HealthConfig struct {
	Timeout   Duration `toml:"timeout" json:"timeout"`
	Threshold float64  `toml:"threshold" json:"threshold"`
	Samples   int      `toml:"samples" json:"samples"`
	Interval  Duration `toml:"interval" json:"interval"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	// Backend is "file" or "sqlite"
	Backend string `toml:"backend" json:"backend"`
	// Path is the data directory (file) or database file (sqlite).
	// Empty selects a location under the config directory.
	Path string `toml:"path,omitempty" json:"path,omitempty"`
	// MaxChats limits stored conversations (0 = unlimited)
	MaxChats int `toml:"max_chats" json:"max_chats"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error"
	Level string `toml:"level" json:"level"`
	// Format is "text" or "json"
	Format string `toml:"format" json:"format"`
	// File is a log file path; empty logs to stderr
	File string `toml:"file,omitempty" json:"file,omitempty"`
}

// UIConfig contains terminal output settings.
type UIConfig struct {
	RenderMarkdown bool `toml:"render_markdown" json:"render_markdown"`
	WordWrap       int  `toml:"word_wrap" json:"word_wrap"`
	Color          bool `toml:"color" json:"color"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			URL:           client.DefaultBaseURL,
			Timeout:       Duration{client.DefaultTimeout},
			StreamTimeout: Duration{client.DefaultStreamTimeout},
		},
		Retry: RetryConfig{
			MaxRetries:        client.DefaultMaxRetries,
			InitialDelay:      Duration{client.DefaultInitialDelay},
			MaxDelay:          Duration{client.DefaultMaxDelay},
			BackoffMultiplier: client.DefaultBackoffMultiplier,
		},
		Generation: GenerationConfig{
			MaxMessageLength: validate.DefaultMaxMessageLength,
		},
		Health: HealthConfig{
			Timeout:   Duration{5 * time.Second},
			Threshold: 0.5,
			Samples:   3,
			Interval:  Duration{time.Second},
		},
		Storage: StorageConfig{
			Backend:  BackendFile,
			MaxChats: 100,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		UI: UIConfig{
			RenderMarkdown: true,
			WordWrap:       100,
			Color:          true,
		},
	}
}

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the pocketchat configuration directory path.
// POCKETCHAT_HOME overrides the default ~/.pocketchat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("POCKETCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".pocketchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens config files to 0600. Headers may carry
// credentials.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config directory.
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Keys missing from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFile returns the file's own settings over the defaults, without
// environment overrides or validation. A missing file yields the defaults.
// Use it to edit and re-save a config file.
func ReadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func decodeFile(path string) (*Config, error) {
	cfg := Default()

	var err error
	if strings.HasSuffix(path, ".json") {
		err = loadJSON(cfg, path)
	} else {
		err = loadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, nil
}

func loadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

func loadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// fillDefaults restores values that an explicit empty string cleared.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Generation.MaxMessageLength == 0 {
		c.Generation.MaxMessageLength = defaults.Generation.MaxMessageLength
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# pocketchat configuration file\n")
	buf.WriteString("# Durations use Go syntax, e.g. \"30s\" or \"2m\"\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - POCKETCHAT_SERVER_URL: overrides server.url
//   - POCKETCHAT_MODEL: overrides generation.default_model
//   - POCKETCHAT_LOG_LEVEL: overrides log.level
//   - POCKETCHAT_STORAGE: overrides storage.backend
func (c *Config) ApplyEnvOverrides() {
	if url := os.Getenv("POCKETCHAT_SERVER_URL"); url != "" {
		c.Server.URL = url
	}
	if model := os.Getenv("POCKETCHAT_MODEL"); model != "" {
		c.Generation.DefaultModel = model
	}
	if level := os.Getenv("POCKETCHAT_LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}
	if backend := os.Getenv("POCKETCHAT_STORAGE"); backend != "" {
		c.Storage.Backend = strings.ToLower(backend)
	}
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// ClientConfig returns the API client configuration.
func (c *Config) ClientConfig() client.Config {
	headers := make(map[string]string, len(c.Server.Headers))
	for k, v := range c.Server.Headers {
		headers[k] = v
	}
	return client.Config{
		BaseURL:           c.Server.URL,
		Timeout:           c.Server.Timeout.Duration,
		StreamTimeout:     c.Server.StreamTimeout.Duration,
		Headers:           headers,
		RequestsPerSecond: c.Server.RequestsPerSecond,
		Retry: client.RetryPolicy{
			MaxRetries:        c.Retry.MaxRetries,
			InitialDelay:      c.Retry.InitialDelay.Duration,
			MaxDelay:          c.Retry.MaxDelay.Duration,
			BackoffMultiplier: c.Retry.BackoffMultiplier,
		},
	}
}

// GenerationParams returns the configured sampling defaults.
func (c *Config) GenerationParams() validate.GenerationParams {
	return validate.GenerationParams{
		Temperature: c.Generation.Temperature,
		MaxTokens:   c.Generation.MaxTokens,
		TopP:        c.Generation.TopP,
	}
}

// StoragePath returns the configured storage location, or the default for
// the backend.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if c.Storage.Backend == BackendSQLite {
		return filepath.Join(dir, "pocketchat.db"), nil
	}
	return filepath.Join(dir, "data"), nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.Headers != nil {
		clone.Server.Headers = make(map[string]string, len(c.Server.Headers))
		for k, v := range c.Server.Headers {
			clone.Server.Headers[k] = v
		}
	}
	clone.Generation.Temperature = clonePtr(c.Generation.Temperature)
	clone.Generation.MaxTokens = clonePtr(c.Generation.MaxTokens)
	clone.Generation.TopP = clonePtr(c.Generation.TopP)
	return &clone
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// String returns the config as TOML with header values redacted.
func (c *Config) String() string {
	safe := c.Clone()
	for k := range safe.Server.Headers {
		safe.Server.Headers[k] = "[REDACTED]"
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration that reads and writes as text like "30s".
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}
