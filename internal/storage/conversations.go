// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/util"
)

// DefaultMaxChats is the number of conversations kept before the oldest are
// dropped.
const DefaultMaxChats = 100

// =============================================================================
// CHAT REPOSITORY
// =============================================================================

// ChatRepository keeps the conversation list under KeyChats, newest first,
// and the active conversation id under KeyActiveChatID.
type ChatRepository struct {
	store Store

	// MaxChats limits stored conversations (0 = unlimited)
	MaxChats int

	mu sync.Mutex
}

// NewChatRepository creates a repository over store.
func NewChatRepository(store Store) *ChatRepository {
	return &ChatRepository{store: store, MaxChats: DefaultMaxChats}
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save stores a snapshot of conv, replacing any chat with the same ID, and
// moves it to the front of the list.
func (r *ChatRepository) Save(ctx context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chats, err := r.load(ctx)
	if err != nil {
		return err
	}

	snapshot := conv.Clone()
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now()
	}

	out := make([]*model.Conversation, 0, len(chats)+1)
	out = append(out, snapshot)
	for _, c := range chats {
		if c.ID != snapshot.ID {
			out = append(out, c)
		}
	}

	// Enforce max chats limit
	if r.MaxChats > 0 && len(out) > r.MaxChats {
		out = out[:r.MaxChats]
	}

	return r.store.Set(ctx, KeyChats, out)
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// All returns every stored conversation, newest first.
func (r *ChatRepository) All(ctx context.Context) ([]*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// Get returns the conversation with the given ID.
func (r *ChatRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	chats, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range chats {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

// Find resolves a full ID, a unique ID prefix, or a 1-based list index.
func (r *ChatRepository) Find(ctx context.Context, ref string) (*model.Conversation, error) {
	chats, err := r.All(ctx)
	if err != nil {
		return nil, err
	}

	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(chats) {
			return nil, ErrNotFound
		}
		return chats[n-1], nil
	}

	var match *model.Conversation
	for _, c := range chats {
		if c.ID == ref {
			return c, nil
		}
		if ref != "" && strings.HasPrefix(c.ID, ref) {
			if match != nil {
				return nil, ErrNotFound // ambiguous
			}
			match = c
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	return match, nil
}

// load reads the list and repairs anything a crash mid-stream left behind.
func (r *ChatRepository) load(ctx context.Context) ([]*model.Conversation, error) {
	var chats []*model.Conversation
	if _, err := r.store.Get(ctx, KeyChats, &chats); err != nil {
		return nil, err
	}

	out := chats[:0]
	for _, c := range chats {
		if c == nil {
			continue
		}
		c.Repair()
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// List returns metadata for every conversation (most recent first).
func (r *ChatRepository) List(ctx context.Context) ([]model.ConversationMeta, error) {
	chats, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	metas := make([]model.ConversationMeta, 0, len(chats))
	for _, c := range chats {
		metas = append(metas, c.Meta())
	}
	return metas, nil
}

// Search finds conversations whose title or any message contains query
// (case-insensitive). An empty query matches everything.
func (r *ChatRepository) Search(ctx context.Context, query string) ([]model.ConversationMeta, error) {
	chats, err := r.All(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	var results []model.ConversationMeta
	for _, c := range chats {
		if query == "" || matches(c, query) {
			results = append(results, c.Meta())
		}
	}
	return results, nil
}

func matches(c *model.Conversation, query string) bool {
	if strings.Contains(strings.ToLower(c.Title), query) {
		return true
	}
	for _, msg := range c.Messages {
		if strings.Contains(strings.ToLower(msg.Content), query) {
			return true
		}
	}
	return false
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a conversation. If it was active the selection is cleared.
func (r *ChatRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chats, err := r.load(ctx)
	if err != nil {
		return err
	}

	out := make([]*model.Conversation, 0, len(chats))
	for _, c := range chats {
		if c.ID != id {
			out = append(out, c)
		}
	}
	if len(out) == len(chats) {
		return ErrNotFound
	}
	if err := r.store.Set(ctx, KeyChats, out); err != nil {
		return err
	}

	var active string
	if _, err := r.store.Get(ctx, KeyActiveChatID, &active); err != nil {
		return err
	}
	if active == id {
		return r.store.Remove(ctx, KeyActiveChatID)
	}
	return nil
}

// =============================================================================
// ACTIVE SELECTION
// =============================================================================

// ActiveID returns the active conversation id, or "" if none.
func (r *ChatRepository) ActiveID(ctx context.Context) (string, error) {
	var id string
	_, err := r.store.Get(ctx, KeyActiveChatID, &id)
	return id, err
}

// SetActiveID records the active conversation. An empty id clears it.
func (r *ChatRepository) SetActiveID(ctx context.Context, id string) error {
	if id == "" {
		return r.store.Remove(ctx, KeyActiveChatID)
	}
	return r.store.Set(ctx, KeyActiveChatID, id)
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatChatList formats conversation metadata as a table.
func FormatChatList(metas []model.ConversationMeta) string {
	if len(metas) == 0 {
		return "No chats found."
	}

	var sb strings.Builder
	sb.WriteString(util.PadWidth("#", 4) + util.PadWidth("ID", 10) + util.PadWidth("Updated", 18) +
		util.PadWidth("Msgs", 6) + "Title\n")
	sb.WriteString(strings.Repeat("-", 72) + "\n")

	for i, m := range metas {
		id := m.ID
		if len(id) > 8 {
			id = id[:8]
		}
		sb.WriteString(util.PadWidth(strconv.Itoa(i+1), 4) +
			util.PadWidth(id, 10) +
			util.PadWidth(m.UpdatedAt.Format("2006-01-02 15:04"), 18) +
			util.PadWidth(strconv.Itoa(m.MessageCount), 6) +
			util.TruncateWidth(m.Title, 34) + "\n")
	}
	return sb.String()
}

