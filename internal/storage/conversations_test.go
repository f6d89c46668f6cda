// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/pocketchat/internal/model"
)

func newConv(t *testing.T, text string) *model.Conversation {
	t.Helper()
	c := model.NewConversation("test-model")
	if _, err := c.AddUserMessage(text); err != nil {
		t.Fatal(err)
	}
	return c
}

// =============================================================================
// CHAT REPOSITORY TESTS
// =============================================================================

func TestChatRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(NewMemoryStore())

	conv := newConv(t, "Hello there")
	if err := repo.Save(ctx, conv); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := repo.Get(ctx, conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Title != "Hello there" {
		t.Errorf("Title = %q, want %q", loaded.Title, "Hello there")
	}
	if loaded.MessageCount() != 1 {
		t.Errorf("MessageCount = %d, want 1", loaded.MessageCount())
	}
}

func TestChatRepository_GetNotFound(t *testing.T) {
	repo := NewChatRepository(NewMemoryStore())

	_, err := repo.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestChatRepository_SaveIsUpsertNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(NewMemoryStore())

	a := newConv(t, "first")
	b := newConv(t, "second")
	b.UpdatedAt = a.UpdatedAt.Add(time.Second)
	for _, c := range []*model.Conversation{a, b} {
		if err := repo.Save(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	// Touch a again; it should move to the front without duplicating
	if _, err := a.AddUserMessage("again"); err != nil {
		t.Fatal(err)
	}
	a.UpdatedAt = b.UpdatedAt.Add(time.Second)
	if err := repo.Save(ctx, a); err != nil {
		t.Fatal(err)
	}

	metas, err := repo.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 2 {
		t.Fatalf("len = %d, want 2", len(metas))
	}
	if metas[0].ID != a.ID || metas[0].MessageCount != 2 {
		t.Errorf("front = %+v, want updated %s", metas[0], a.ID)
	}
}

func TestChatRepository_SaveSnapshotsStreamingText(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(NewMemoryStore())

	conv := newConv(t, "hi")
	if _, err := conv.BeginAssistant(); err != nil {
		t.Fatal(err)
	}
	conv.AppendToLast("partial")
	if err := repo.Save(ctx, conv); err != nil {
		t.Fatal(err)
	}

	loaded, err := repo.Get(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	last := loaded.LastMessage()
	if last.IsStreaming {
		t.Error("loaded message still streaming")
	}
	if last.Content != "partial" {
		t.Errorf("Content = %q, want partial", last.Content)
	}
}

func TestChatRepository_MaxChats(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(NewMemoryStore())
	repo.MaxChats = 2

	base := time.Now()
	for i, text := range []string{"one", "two", "three"} {
		c := newConv(t, text)
		c.UpdatedAt = base.Add(time.Duration(i) * time.Second)
		if err := repo.Save(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	metas, _ := repo.List(ctx)
	if len(metas) != 2 {
		t.Fatalf("len = %d, want 2", len(metas))
	}
	if metas[0].Title != "three" || metas[1].Title != "two" {
		t.Errorf("titles = %q, %q", metas[0].Title, metas[1].Title)
	}
}

func TestChatRepository_Search(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(NewMemoryStore())

	a := newConv(t, "Go generics")
	b := newConv(t, "Pasta recipes")
	if _, err := b.BeginAssistant(); err != nil {
		t.Fatal(err)
	}
	b.AppendToLast("Try carbonara with GUANCIALE")
	b.FinalizeLast("stop")
	for _, c := range []*model.Conversation{a, b} {
		if err := repo.Save(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{"generics", 1},
		{"guanciale", 1},
		{"RECIPES", 1},
		{"", 2},
		{"nothing", 0},
	}
	for _, tt := range tests {
		results, err := repo.Search(ctx, tt.query)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != tt.want {
			t.Errorf("Search(%q) = %d results, want %d", tt.query, len(results), tt.want)
		}
	}
}

func TestChatRepository_DeleteClearsActive(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(NewMemoryStore())

	conv := newConv(t, "bye")
	if err := repo.Save(ctx, conv); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetActiveID(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}

	if err := repo.Delete(ctx, conv.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if id, _ := repo.ActiveID(ctx); id != "" {
		t.Errorf("ActiveID = %q, want empty", id)
	}
	if err := repo.Delete(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestChatRepository_Find(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(NewMemoryStore())

	conv := newConv(t, "find me")
	if err := repo.Save(ctx, conv); err != nil {
		t.Fatal(err)
	}

	for _, ref := range []string{conv.ID, conv.ID[:8], "1"} {
		got, err := repo.Find(ctx, ref)
		if err != nil {
			t.Errorf("Find(%q) failed: %v", ref, err)
			continue
		}
		if got.ID != conv.ID {
			t.Errorf("Find(%q) = %s, want %s", ref, got.ID, conv.ID)
		}
	}
	if _, err := repo.Find(ctx, "2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find(2) error = %v, want ErrNotFound", err)
	}
}

func TestChatRepository_FileBackend(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	conv := newConv(t, "on disk")
	if err := NewChatRepository(fs).Save(ctx, conv); err != nil {
		t.Fatal(err)
	}

	// A fresh repository sees the same data
	loaded, err := NewChatRepository(fs).Get(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Messages[0].Content != "on disk" {
		t.Errorf("Content = %q", loaded.Messages[0].Content)
	}
}

// =============================================================================
// FORMATTING TESTS
// =============================================================================

func TestFormatChatList(t *testing.T) {
	if got := FormatChatList(nil); got != "No chats found." {
		t.Errorf("empty list = %q", got)
	}

	conv := newConv(t, "Formatting check")
	out := FormatChatList([]model.ConversationMeta{conv.Meta()})
	if !strings.Contains(out, "Formatting check") {
		t.Errorf("output missing title:\n%s", out)
	}
	if !strings.Contains(out, conv.ID[:8]) {
		t.Errorf("output missing short id:\n%s", out)
	}
}

