// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// =============================================================================
// ERROR KINDS
// =============================================================================

// Kind categorizes API errors for handling.
type Kind string

const (
	KindNetwork       Kind = "network"
	KindTimeout       Kind = "timeout"
	KindServer        Kind = "server"
	KindStream        Kind = "stream"
	KindModelNotFound Kind = "model-not-found"
	KindValidation    Kind = "validation"
	KindCancelled     Kind = "cancelled"
	KindParse         Kind = "parse"
	KindUnknown       Kind = "unknown"
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	return string(k)
}

// =============================================================================
// ERROR TYPE
// =============================================================================

// Error is a classified failure. It is never mutated after construction.
type Error struct {
	Kind    Kind
	Message string

	// StatusCode is set for KindServer.
	StatusCode int

	// ModelID is set for KindModelNotFound.
	ModelID string

	// Field is set for KindValidation.
	Field string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind. This lets callers
// write errors.Is(err, &apierr.Error{Kind: apierr.KindTimeout}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.StatusCode == 0 || t.StatusCode == e.StatusCode)
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// New creates an error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Network creates a network error.
func Network(message string, cause error) *Error {
	return New(KindNetwork, message, cause)
}

// Timeout creates a timeout error.
func Timeout(message string, cause error) *Error {
	return New(KindTimeout, message, cause)
}

// Server creates a server error carrying the HTTP status.
func Server(status int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("Server error: %d", status)
	}
	return &Error{Kind: KindServer, Message: message, StatusCode: status}
}

// Stream creates a stream error.
func Stream(message string, cause error) *Error {
	return New(KindStream, message, cause)
}

// ModelNotFound creates a model-not-found error for modelID.
func ModelNotFound(modelID string) *Error {
	return &Error{
		Kind:    KindModelNotFound,
		Message: fmt.Sprintf("Model %q not found", modelID),
		ModelID: modelID,
	}
}

// Validation creates a validation error for field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Field: field}
}

// Cancelled creates a cancellation error.
func Cancelled(cause error) *Error {
	return New(KindCancelled, "Request was cancelled", cause)
}

// FromContext reports why ctx ended: a passed deadline is a timeout and
// anything else is a cancellation. It returns nil while ctx is live.
func FromContext(ctx context.Context) *Error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, context.DeadlineExceeded) {
		return Timeout("Request timed out", cause)
	}
	return Cancelled(cause)
}

// Parse creates a parse error.
func Parse(message string, cause error) *Error {
	return New(KindParse, message, cause)
}

// Unknown creates an unclassified error.
func Unknown(message string, cause error) *Error {
	return New(KindUnknown, message, cause)
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err after classification. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Classify maps any error into exactly one kind. An *Error already in the
// chain is returned unchanged. Classify(nil) returns nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}

	if errors.Is(err, context.Canceled) {
		return Cancelled(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout("Request timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout("Request timed out", err)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return Timeout("Request timed out", err)
	}

	var opErr *net.OpError
	var urlErr *url.Error
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &urlErr) || errors.As(err, &dnsErr) {
		return Network("Network error", err)
	}
	if strings.Contains(msg, "network") ||
		strings.Contains(msg, "failed to fetch") ||
		strings.Contains(msg, "connection refused") {
		return Network("Network error", err)
	}

	return Unknown("Unexpected error", err)
}

// IsRetryable reports whether a failed request may be attempted again.
// Network and timeout failures always are; server failures only for 5xx.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	e := Classify(err)
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindServer:
		return e.StatusCode >= 500 && e.StatusCode <= 599
	default:
		return false
	}
}

// =============================================================================
// USER-FACING MESSAGES
// =============================================================================

// UserMessage translates err into text suitable for a notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	e := Classify(err)
	switch e.Kind {
	case KindNetwork:
		return "Cannot reach the server. Check the server address and your connection."
	case KindTimeout:
		return "The server took too long to respond. Try again."
	case KindServer:
		if e.StatusCode >= 500 {
			return fmt.Sprintf("The server failed to handle the request (%d): %s", e.StatusCode, e.Message)
		}
		return e.Message
	case KindStream:
		return "The response stream was interrupted."
	case KindModelNotFound:
		return fmt.Sprintf("Model %q is not available on this server.", e.ModelID)
	case KindValidation:
		return e.Message
	case KindCancelled:
		return "Request cancelled."
	case KindParse:
		return "The server sent a response that could not be read."
	default:
		return "Something went wrong: " + e.Message
	}
}
