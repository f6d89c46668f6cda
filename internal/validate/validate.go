// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package validate checks user input before it reaches the network.
//
// Every failure is an *apierr.Error of kind validation carrying the offending
// field, so callers can show it next to the right input.
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/pocketchat/internal/apierr"
)

// Limits applied to outgoing requests.
const (
	// DefaultMaxMessageLength is the default maximum message length in runes.
	DefaultMaxMessageLength = 10000

	// MaxTokensCap is the hard upper bound for max_tokens.
	MaxTokensCap = 32768
)

// =============================================================================
// SHARED VALIDATOR INSTANCE
// =============================================================================

// structValidate reports fields by their JSON names.
var structValidate *validator.Validate

func init() {
	structValidate = validator.New(validator.WithRequiredStructEnabled())
	structValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// Struct validates v using its `validate` tags and converts the first
// failure into a validation error.
func Struct(v any) error {
	err := structValidate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apierr.Validation(fe.Field(), describe(fe))
	}
	return apierr.Validation("", err.Error())
}

// describe renders a field error as a sentence.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s)", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

// =============================================================================
// GENERATION PARAMETERS
// =============================================================================

// GenerationParams are the numeric sampling parameters of a chat request.
// Nil means "use the configured default".
type GenerationParams struct {
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int     `json:"max_tokens,omitempty" validate:"omitempty,gte=1,lte=32768"`
	TopP        *float64 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Validate checks the parameter ranges.
func (p GenerationParams) Validate() error {
	return Struct(p)
}

// WithDefaults returns p with nil fields taken from defaults.
func (p GenerationParams) WithDefaults(defaults GenerationParams) GenerationParams {
	if p.Temperature == nil {
		p.Temperature = defaults.Temperature
	}
	if p.MaxTokens == nil {
		p.MaxTokens = defaults.MaxTokens
	}
	if p.TopP == nil {
		p.TopP = defaults.TopP
	}
	return p
}

// =============================================================================
// SCALAR CHECKS
// =============================================================================

// Normalize converts text to NFC and trims surrounding whitespace.
func Normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// MessageContent checks that content is non-empty after trimming and at most
// maxLen runes long. A maxLen of zero or less selects the default.
func MessageContent(content string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	trimmed := Normalize(content)
	if trimmed == "" {
		return apierr.Validation("content", "Message cannot be empty")
	}
	if n := len([]rune(trimmed)); n > maxLen {
		return apierr.Validation("content",
			fmt.Sprintf("Message is too long (%d characters, maximum %d)", n, maxLen))
	}
	return nil
}

// ModelID checks that a model identifier is present and has no whitespace.
func ModelID(id string) error {
	if strings.TrimSpace(id) == "" {
		return apierr.Validation("model", "Model is required")
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return apierr.Validation("model", "Model must not contain whitespace")
	}
	return nil
}

// ServerURL checks that raw is an absolute http or https URL with a host.
func ServerURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apierr.Validation("baseUrl", "Server URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &apierr.Error{
			Kind:    apierr.KindValidation,
			Message: "Server URL is not a valid URL",
			Field:   "baseUrl",
			Cause:   err,
		}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return apierr.Validation("baseUrl", "Server URL must start with http:// or https://")
	}
	if u.Hostname() == "" {
		return apierr.Validation("baseUrl", "Server URL must include a host")
	}
	return nil
}
