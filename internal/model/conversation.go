// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/pocketchat/internal/util"
)

const (
	// MaxHistoryMessages is the most non-system messages sent to the server
	// in one request. The stored conversation is never trimmed.
	MaxHistoryMessages = 1000

	// DefaultTitle is the title of a conversation with no user message yet.
	DefaultTitle = "New Chat"

	// TitleMaxLength is the number of runes kept from the first user message
	// when deriving a title.
	TitleMaxLength = 30
)

// Errors returned by conversation mutations.
var (
	// ErrAlreadyStreaming is returned when a message would be added while a
	// reply is still streaming.
	ErrAlreadyStreaming = errors.New("a reply is already streaming")

	// ErrNotStreaming is returned when there is no streaming reply to update.
	ErrNotStreaming = errors.New("no reply is streaming")

	// ErrNoUserMessage is returned when an operation needs a user message.
	ErrNoUserMessage = errors.New("conversation has no user message")
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`

	// Model is the model selected for this conversation, if any.
	Model string `json:"model,omitempty"`

	// TitleCustomized stops the title from being derived automatically.
	TitleCustomized bool `json:"title_customized,omitempty"`
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation(modelID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
		Model:     modelID,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a finished message. It fails while a reply is streaming.
func (c *Conversation) AddMessage(msg *Message) error {
	if c.Streaming() != nil {
		return ErrAlreadyStreaming
	}
	c.Messages = append(c.Messages, msg)
	c.touch()
	c.updateTitle()
	return nil
}

// AddUserMessage creates and adds a user message.
func (c *Conversation) AddUserMessage(content string) (*Message, error) {
	msg := NewUserMessage(content)
	if err := c.AddMessage(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// BeginAssistant adds an empty streaming assistant message.
func (c *Conversation) BeginAssistant() (*Message, error) {
	if c.Streaming() != nil {
		return nil, ErrAlreadyStreaming
	}
	msg := NewAssistantMessage()
	c.Messages = append(c.Messages, msg)
	c.touch()
	return msg, nil
}

// Streaming returns the streaming message, or nil.
func (c *Conversation) Streaming() *Message {
	last := c.LastMessage()
	if last != nil && last.IsStreaming {
		return last
	}
	return nil
}

// AppendToLast appends text to the streaming reply. It reports false when
// nothing is streaming.
func (c *Conversation) AppendToLast(token string) bool {
	msg := c.Streaming()
	if msg == nil {
		return false
	}
	msg.AppendToken(token)
	c.touch()
	return true
}

// FinalizeLast ends the streaming reply and returns it, or nil when nothing
// was streaming.
func (c *Conversation) FinalizeLast(finishReason string) *Message {
	msg := c.Streaming()
	if msg == nil {
		return nil
	}
	msg.FinalizeStream()
	msg.FinishReason = finishReason
	c.touch()
	return msg
}

// FailLast ends the streaming reply with an error, keeping partial text.
// An empty reply is removed instead.
func (c *Conversation) FailLast(reason string) *Message {
	msg := c.Streaming()
	if msg == nil {
		return nil
	}
	msg.FinalizeStream()
	if msg.Content == "" {
		c.Messages = c.Messages[:len(c.Messages)-1]
		c.touch()
		return nil
	}
	msg.Error = reason
	c.touch()
	return msg
}

// TruncateAfterLastUser drops every message after the last user message and
// returns that message, so its reply can be generated again.
func (c *Conversation) TruncateAfterLastUser() (*Message, error) {
	if c.Streaming() != nil {
		return nil, ErrAlreadyStreaming
	}
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			c.Messages = c.Messages[:i+1]
			c.touch()
			return c.Messages[i], nil
		}
	}
	return nil, ErrNoUserMessage
}

// SetSystemPrompt keeps a single leading system message with the given text.
// An empty prompt removes it.
func (c *Conversation) SetSystemPrompt(prompt string) error {
	if c.Streaming() != nil {
		return ErrAlreadyStreaming
	}
	prompt = strings.TrimSpace(prompt)
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem {
		if prompt == "" {
			c.Messages = c.Messages[1:]
		} else {
			c.Messages[0].Content = prompt
		}
	} else if prompt != "" {
		c.Messages = append([]*Message{NewSystemMessage(prompt)}, c.Messages...)
	}
	c.touch()
	return nil
}

// SystemPrompt returns the leading system message text, if any.
func (c *Conversation) SystemPrompt() string {
	if len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem {
		return c.Messages[0].Content
	}
	return ""
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// LastUserMessage returns the most recent user message.
func (c *Conversation) LastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i]
		}
	}
	return nil
}

// RemoveMessage removes a finished message by ID.
func (c *Conversation) RemoveMessage(id string) bool {
	for i, msg := range c.Messages {
		if msg.ID == id && !msg.IsStreaming {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			c.touch()
			return true
		}
	}
	return false
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// INVARIANTS
// =============================================================================

// CheckInvariant verifies that at most one message is streaming and that it
// is the trailing assistant message.
func (c *Conversation) CheckInvariant() error {
	for i, msg := range c.Messages {
		if !msg.IsStreaming {
			continue
		}
		if i != len(c.Messages)-1 {
			return fmt.Errorf("message %s at %d is streaming but not last", msg.ID, i)
		}
		if msg.Role != RoleAssistant {
			return fmt.Errorf("streaming message %s has role %s", msg.ID, msg.Role)
		}
	}
	return nil
}

// Repair clears streaming flags left behind by an interrupted session. Empty
// interrupted replies are dropped.
func (c *Conversation) Repair() bool {
	changed := false
	kept := c.Messages[:0]
	for _, msg := range c.Messages {
		if msg.IsStreaming {
			msg.FinalizeStream()
			changed = true
			if msg.Content == "" {
				continue
			}
			msg.Error = "interrupted"
		}
		kept = append(kept, msg)
	}
	c.Messages = kept
	return changed
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle derives the title from the first user message unless the user
// has renamed the conversation.
func (c *Conversation) updateTitle() {
	if c.TitleCustomized || (c.Title != "" && c.Title != DefaultTitle) {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = DeriveTitle(msg.Content)
			return
		}
	}
	c.Title = DefaultTitle
}

// DeriveTitle builds a title from message text: whitespace is collapsed and
// the first TitleMaxLength runes are kept, followed by "..." when cut.
func DeriveTitle(content string) string {
	text := strings.Join(strings.Fields(content), " ")
	if text == "" {
		return DefaultTitle
	}
	runes := []rune(text)
	if len(runes) <= TitleMaxLength {
		return text
	}
	return strings.TrimSpace(string(runes[:TitleMaxLength])) + util.Ellipsis
}

// Rename sets a custom title. An empty title restores automatic titling.
func (c *Conversation) Rename(title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		c.TitleCustomized = false
		c.Title = DefaultTitle
		c.updateTitle()
	} else {
		c.TitleCustomized = true
		c.Title = title
	}
	c.touch()
}

// DisplayTitle returns the title or the default.
func (c *Conversation) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return DefaultTitle
}

// =============================================================================
// SERIALIZATION HELPERS
// =============================================================================

// Preview returns a short preview of the latest exchange.
func (c *Conversation) Preview(maxLen int) string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role != RoleSystem && !c.Messages[i].IsEmpty() {
			return c.Messages[i].Preview(maxLen)
		}
	}
	return "Empty conversation"
}

// Meta returns lightweight metadata for listing.
func (c *Conversation) Meta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Title:        c.DisplayTitle(),
		Model:        c.Model,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Preview:      c.Preview(100),
	}
}

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview"`
}

// Clone creates a deep copy of the conversation. Streaming text is captured
// in the copy's Content.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return &clone
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func (c *Conversation) touch() {
	c.UpdatedAt = time.Now()
}

// RecentHistory returns clones of every system message followed by the
// newest limit other messages, in conversation order. A limit of zero or
// less keeps all of them.
func (c *Conversation) RecentHistory(limit int) []*Message {
	others := 0
	for _, msg := range c.Messages {
		if msg.Role != RoleSystem {
			others++
		}
	}
	skip := 0
	if limit > 0 && others > limit {
		skip = others - limit
	}

	out := make([]*Message, 0, len(c.Messages)-skip)
	for _, msg := range c.Messages {
		if msg.Role != RoleSystem && skip > 0 {
			skip--
			continue
		}
		out = append(out, msg.Clone())
	}
	return out
}
