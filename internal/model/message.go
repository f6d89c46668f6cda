// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/pocketchat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// IsStreaming is true while the assistant reply is still arriving.
	IsStreaming bool `json:"is_streaming,omitempty"`

	// FinishReason is the server's reason for ending the reply.
	FinishReason string `json:"finish_reason,omitempty"`

	// Error holds the failure text when a reply ended early.
	Error string `json:"error,omitempty"`

	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	stream *strings.Builder
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// NewAssistantMessage creates an empty assistant message in streaming state.
func NewAssistantMessage() *Message {
	msg := NewMessage(RoleAssistant, "")
	msg.IsStreaming = true
	msg.stream = &strings.Builder{}
	return msg
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendToken appends text to a streaming message. It is a no-op otherwise.
func (m *Message) AppendToken(token string) {
	if !m.IsStreaming {
		return
	}
	if m.stream == nil {
		m.stream = &strings.Builder{}
		m.stream.WriteString(m.Content)
	}
	m.stream.WriteString(token)
}

// FinalizeStream moves streamed text into Content and clears the streaming flag.
func (m *Message) FinalizeStream() {
	if !m.IsStreaming {
		return
	}
	m.Content = m.DisplayContent()
	m.stream = nil
	m.IsStreaming = false
}

// DisplayContent returns the text to show, including text still streaming.
func (m *Message) DisplayContent() string {
	if m.IsStreaming && m.stream != nil {
		return m.stream.String()
	}
	return m.Content
}

// Preview returns a rune-safe truncated preview of the message.
func (m *Message) Preview(maxLen int) string {
	return util.TruncateRunes(strings.Join(strings.Fields(m.DisplayContent()), " "), maxLen)
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return m.DisplayContent() == ""
}

// Clone returns a copy whose content reflects any text still streaming.
func (m *Message) Clone() *Message {
	c := *m
	c.Content = m.DisplayContent()
	c.stream = nil
	if c.IsStreaming {
		c.stream = &strings.Builder{}
		c.stream.WriteString(c.Content)
	}
	return &c
}
