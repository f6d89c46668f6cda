// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

// =============================================================================
// STREAM CHUNK
// =============================================================================

// StreamChunk is one chat.completion.chunk event as sent on the wire.
type StreamChunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// Choice is one alternative within a chunk.
type Choice struct {
	Index int   `json:"index"`
	Delta Delta `json:"delta"`

	// FinishReason is non-nil on the terminal chunk of this choice.
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental part of a message.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// ExtractContent returns choices[0].delta.content, or "" when absent.
func ExtractContent(c *StreamChunk) string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// IsStreamComplete reports whether the first choice carries a finish reason.
func IsStreamComplete(c *StreamChunk) bool {
	return c != nil && len(c.Choices) > 0 && c.Choices[0].FinishReason != nil
}

// FinishReason returns the first choice's finish reason verbatim, or "".
func FinishReason(c *StreamChunk) string {
	if !IsStreamComplete(c) {
		return ""
	}
	return *c.Choices[0].FinishReason
}

// Role returns the role announced by the first choice, if any.
func Role(c *StreamChunk) string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Role
}
