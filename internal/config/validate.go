// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"strings"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/validate"
)

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
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found as
// ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if err := validate.ServerURL(c.Server.URL); err != nil {
		add("server.url", "%s", apierr.UserMessage(err))
	}
	if c.Server.Timeout.Duration <= 0 {
		add("server.timeout", "must be positive")
	}
	if c.Server.StreamTimeout.Duration <= 0 {
		add("server.stream_timeout", "must be positive")
	}
	if c.Server.RequestsPerSecond < 0 {
		add("server.requests_per_second", "cannot be negative")
	}

	// Retry
	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 10 {
		add("retry.max_retries", "must be between 0 and 10, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.InitialDelay.Duration <= 0 {
		add("retry.initial_delay", "must be positive")
	}
	if c.Retry.MaxDelay.Duration < c.Retry.InitialDelay.Duration {
		add("retry.max_delay", "must be at least retry.initial_delay")
	}
	if c.Retry.BackoffMultiplier < 1 {
		add("retry.backoff_multiplier", "must be at least 1, got %g", c.Retry.BackoffMultiplier)
	}

	// Generation
	if c.Generation.DefaultModel != "" {
		if err := validate.ModelID(c.Generation.DefaultModel); err != nil {
			add("generation.default_model", "%s", apierr.UserMessage(err))
		}
	}
	if err := c.GenerationParams().Validate(); err != nil {
		field := "generation"
		if apiErr, ok := apierr.As(err); ok && apiErr.Field != "" {
			field += "." + apiErr.Field
		}
		add(field, "%s", apierr.UserMessage(err))
	}
	if c.Generation.MaxMessageLength < 1 {
		add("generation.max_message_length", "must be positive")
	}

	// Health
	if c.Health.Timeout.Duration <= 0 {
		add("health.timeout", "must be positive")
	}
	if c.Health.Threshold < 0 || c.Health.Threshold > 1 {
		add("health.threshold", "must be between 0 and 1, got %g", c.Health.Threshold)
	}
	if c.Health.Samples < 1 {
		add("health.samples", "must be at least 1")
	}
	if c.Health.Interval.Duration < 0 {
		add("health.interval", "cannot be negative")
	}

	// Storage
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
	default:
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite", c.Storage.Backend)
	}
	if c.Storage.MaxChats < 0 {
		add("storage.max_chats", "cannot be negative")
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: text, json", c.Log.Format)
	}

	// UI
	if c.UI.WordWrap < 0 {
		add("ui.word_wrap", "cannot be negative")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
