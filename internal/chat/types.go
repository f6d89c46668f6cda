// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/sse"
	"github.com/jeranaias/pocketchat/internal/validate"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// WireMessage is a message as sent to the server.
type WireMessage struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"` // Message text
}

// CompletionRequest is the request body for /v1/chat/completions.
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []WireMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"` // 0.0-2.0
	MaxTokens   *int          `json:"max_tokens,omitempty"`  // 1-32768
	TopP        *float64      `json:"top_p,omitempty"`       // 0.0-1.0
}

// Options are per-call sampling parameters. Nil fields use the service defaults.
type Options struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

func (o Options) params() validate.GenerationParams {
	return validate.GenerationParams{
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
		TopP:        o.TopP,
	}
}

// StreamOptions are Options plus progress callbacks.
type StreamOptions struct {
	Options
	Callbacks sse.Callbacks
}

// toWire strips local-only fields. Nil entries are skipped.
func toWire(messages []*model.Message) []WireMessage {
	wire := make([]WireMessage, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		wire = append(wire, WireMessage{Role: m.Role.String(), Content: m.Content})
	}
	return wire
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// CompletionResponse is the non-streaming response body.
type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

// CompletionChoice is one generated alternative.
type CompletionChoice struct {
	Index        int         `json:"index"`
	Message      WireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage reports token counts when the server provides them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
