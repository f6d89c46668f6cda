// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types, display and exit codes for pocketchat commands.
//
// Commands always return errors; Main displays them once and picks the
// exit code.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/config"
	"github.com/jeranaias/pocketchat/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitServerError   = 4
	ExitNetworkError  = 5
	ExitStreamError   = 6
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
	ExitCancelled     = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError wraps a failure with the command and action that hit it.
type CommandError struct {
	Command string
	Action  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError is a bad command-line argument.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError is a missing conversation, model or key.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// exitError ends a command that has already reported its outcome.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// NewCommandError wraps err with its command context.
func NewCommandError(command, action string, err error) error {
	return &CommandError{Command: command, Action: action, Err: err}
}

// NewValidationError creates an argument error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// NewValidationErrorWithExample creates an argument error with a usage hint.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason, Example: example}
}

// ErrMissingArgument reports a required positional argument.
func ErrMissingArgument(argName, usage string) error {
	return NewValidationErrorWithExample(argName, "", "required argument missing", usage)
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// =============================================================================
// DISPLAY
// =============================================================================

// Describe returns the text shown to the user for err. Errors from the chat
// taxonomy use their friendly message.
func Describe(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		if _, ok := apierr.As(cmdErr.Err); ok {
			return fmt.Sprintf("%s %s: %s", cmdErr.Command, cmdErr.Action, apierr.UserMessage(cmdErr.Err))
		}
		return err.Error()
	}
	if _, ok := apierr.As(err); ok {
		return apierr.UserMessage(err)
	}
	return err.Error()
}

// DisplayError writes err to w as styled text, or as a JSON envelope in
// JSON mode.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		DisplayErrorJSON(w, command, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), Describe(err))
}

// DisplayErrorJSON writes the error envelope with structured details.
func DisplayErrorJSON(w io.Writer, command string, err error) {
	resp := NewJSONErrorResponse(command, err)
	details := map[string]string{}

	var (
		verr *ValidationError
		nerr *NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		details["error_type"] = "usage"
		details["field"] = verr.Field
	case errors.As(err, &nerr):
		details["error_type"] = "not_found"
		details["resource"] = nerr.Resource
		details["id"] = nerr.ID
	default:
		if apiErr, ok := apierr.As(err); ok {
			details["error_type"] = apiErr.Kind.String()
			if apiErr.Field != "" {
				details["field"] = apiErr.Field
			}
		} else {
			details["error_type"] = "generic"
		}
	}
	resp.Data = details

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)
}

// =============================================================================
// EXIT CODES
// =============================================================================

// GetExitCode picks the exit code for err.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		xerr   *exitError
		verr   *ValidationError
		nerr   *NotFoundError
		cfgErr config.ValidateErrors
	)
	switch {
	case errors.As(err, &xerr):
		return xerr.code
	case errors.As(err, &verr):
		return ExitUsageError
	case errors.As(err, &nerr), errors.Is(err, storage.ErrNotFound):
		return ExitNotFoundError
	case errors.As(err, &cfgErr):
		return ExitConfigError
	}

	switch apierr.KindOf(err) {
	case apierr.KindValidation:
		return ExitUsageError
	case apierr.KindNetwork:
		return ExitNetworkError
	case apierr.KindTimeout:
		return ExitTimeoutError
	case apierr.KindServer, apierr.KindParse:
		return ExitServerError
	case apierr.KindStream:
		return ExitStreamError
	case apierr.KindModelNotFound:
		return ExitNotFoundError
	case apierr.KindCancelled:
		return ExitCancelled
	default:
		return ExitGeneralError
	}
}
