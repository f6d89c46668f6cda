// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_StreamingLifecycle(t *testing.T) {
	msg := NewAssistantMessage()
	require.True(t, msg.IsStreaming)
	assert.True(t, msg.IsEmpty())

	msg.AppendToken("Hel")
	msg.AppendToken("lo")
	assert.Equal(t, "Hello", msg.DisplayContent())
	assert.Equal(t, "", msg.Content)

	msg.FinalizeStream()
	assert.False(t, msg.IsStreaming)
	assert.Equal(t, "Hello", msg.Content)

	// Finished messages ignore further tokens
	msg.AppendToken("!")
	assert.Equal(t, "Hello", msg.Content)
}

func TestMessage_CloneCapturesStreamingText(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendToken("partial")

	clone := msg.Clone()
	assert.Equal(t, "partial", clone.Content)
	assert.True(t, clone.IsStreaming)

	// The clone is independent of the original
	msg.AppendToken(" more")
	clone.AppendToken(" other")
	assert.Equal(t, "partial more", msg.DisplayContent())
	assert.Equal(t, "partial other", clone.DisplayContent())
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("hello\n\n   world, this is a long message")
	assert.Equal(t, "hello world...", msg.Preview(14))
}

func TestRole(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.False(t, Role("tool").Valid())
	assert.Equal(t, "You", RoleUser.DisplayName())
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_TitleDerivedFromFirstUserMessage(t *testing.T) {
	conv := NewConversation("m")
	assert.Equal(t, DefaultTitle, conv.Title)

	_, err := conv.AddUserMessage("What is the capital of France and why is it famous?")
	require.NoError(t, err)
	assert.Equal(t, "What is the capital of France...", conv.Title)

	_, err = conv.AddUserMessage("second question")
	require.NoError(t, err)
	assert.Equal(t, "What is the capital of France...", conv.Title)
}

func TestConversation_ShortTitleHasNoEllipsis(t *testing.T) {
	conv := NewConversation("m")
	conv.AddUserMessage("  hi   there ")
	assert.Equal(t, "hi there", conv.Title)
}

func TestDeriveTitle_RuneSafe(t *testing.T) {
	title := DeriveTitle(strings.Repeat("日", 40))
	assert.Equal(t, strings.Repeat("日", TitleMaxLength)+"...", title)
	assert.Equal(t, DefaultTitle, DeriveTitle("   "))
}

func TestConversation_CustomTitleIsKept(t *testing.T) {
	conv := NewConversation("m")
	conv.Rename("Travel plans")
	conv.AddUserMessage("Where should I go?")
	assert.Equal(t, "Travel plans", conv.Title)

	// Clearing the custom title re-derives it
	conv.Rename("")
	assert.False(t, conv.TitleCustomized)
	assert.Equal(t, "Where should I go?", conv.Title)
}

func TestConversation_StreamingInvariant(t *testing.T) {
	conv := NewConversation("m")
	conv.AddUserMessage("hello")

	reply, err := conv.BeginAssistant()
	require.NoError(t, err)
	require.NoError(t, conv.CheckInvariant())

	_, err = conv.BeginAssistant()
	assert.ErrorIs(t, err, ErrAlreadyStreaming)

	_, err = conv.AddUserMessage("interrupting")
	assert.ErrorIs(t, err, ErrAlreadyStreaming)
	assert.ErrorIs(t, conv.SetSystemPrompt("x"), ErrAlreadyStreaming)

	assert.True(t, conv.AppendToLast("Hi"))
	assert.Same(t, reply, conv.FinalizeLast("stop"))
	assert.Equal(t, "Hi", reply.Content)
	assert.Equal(t, "stop", reply.FinishReason)

	assert.False(t, conv.AppendToLast("late"))
	assert.Nil(t, conv.FinalizeLast(""))
	require.NoError(t, conv.CheckInvariant())
}

func TestConversation_CheckInvariantDetectsViolations(t *testing.T) {
	conv := NewConversation("m")
	stuck := NewAssistantMessage()
	conv.Messages = append(conv.Messages, stuck, NewUserMessage("after"))
	assert.Error(t, conv.CheckInvariant())

	conv = NewConversation("m")
	user := NewUserMessage("x")
	user.IsStreaming = true
	conv.Messages = append(conv.Messages, user)
	assert.Error(t, conv.CheckInvariant())
}

func TestConversation_FailLast(t *testing.T) {
	conv := NewConversation("m")
	conv.AddUserMessage("hello")

	conv.BeginAssistant()
	conv.AppendToLast("partial")
	msg := conv.FailLast("stream interrupted")
	require.NotNil(t, msg)
	assert.Equal(t, "partial", msg.Content)
	assert.Equal(t, "stream interrupted", msg.Error)
	assert.False(t, msg.IsStreaming)

	// An empty reply disappears
	conv.BeginAssistant()
	assert.Nil(t, conv.FailLast("boom"))
	assert.Equal(t, 2, conv.MessageCount())
}

func TestConversation_TruncateAfterLastUser(t *testing.T) {
	conv := NewConversation("m")
	_, err := conv.TruncateAfterLastUser()
	assert.ErrorIs(t, err, ErrNoUserMessage)

	conv.AddUserMessage("question")
	conv.BeginAssistant()
	conv.AppendToLast("answer")
	conv.FinalizeLast("stop")

	user, err := conv.TruncateAfterLastUser()
	require.NoError(t, err)
	assert.Equal(t, "question", user.Content)
	assert.Equal(t, 1, conv.MessageCount())
}

func TestConversation_SystemPrompt(t *testing.T) {
	conv := NewConversation("m")
	conv.AddUserMessage("hi")

	require.NoError(t, conv.SetSystemPrompt("Be brief."))
	assert.Equal(t, "Be brief.", conv.SystemPrompt())
	assert.Equal(t, RoleSystem, conv.Messages[0].Role)

	require.NoError(t, conv.SetSystemPrompt("Be kind."))
	assert.Equal(t, 2, conv.MessageCount())
	assert.Equal(t, "Be kind.", conv.SystemPrompt())

	require.NoError(t, conv.SetSystemPrompt(""))
	assert.Equal(t, "", conv.SystemPrompt())
	assert.Equal(t, 1, conv.MessageCount())
}

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := NewConversation("m")
	conv.AddUserMessage("hello")
	conv.BeginAssistant()
	conv.AppendToLast("streaming")

	clone := conv.Clone()
	conv.AppendToLast(" more")
	conv.Messages[0].Content = "changed"

	assert.Equal(t, "hello", clone.Messages[0].Content)
	assert.Equal(t, "streaming", clone.Messages[1].Content)
}

func TestConversation_Repair(t *testing.T) {
	conv := NewConversation("m")
	conv.AddUserMessage("hello")
	conv.BeginAssistant()
	conv.AppendToLast("half")

	data, err := json.Marshal(conv.Clone())
	require.NoError(t, err)

	var loaded Conversation
	require.NoError(t, json.Unmarshal(data, &loaded))
	require.True(t, loaded.Messages[1].IsStreaming)

	assert.True(t, loaded.Repair())
	assert.False(t, loaded.Messages[1].IsStreaming)
	assert.Equal(t, "half", loaded.Messages[1].Content)
	assert.Equal(t, "interrupted", loaded.Messages[1].Error)
	assert.NoError(t, loaded.CheckInvariant())
	assert.False(t, loaded.Repair())
}

func TestConversation_LongHistoryIsKept(t *testing.T) {
	conv := NewConversation("m")
	conv.SetSystemPrompt("sys")
	for i := 0; i < MaxHistoryMessages+10; i++ {
		conv.AddUserMessage(fmt.Sprintf("msg %d", i))
	}
	_, err := conv.BeginAssistant()
	require.NoError(t, err)

	assert.Equal(t, MaxHistoryMessages+12, conv.MessageCount())
	assert.Equal(t, "msg 0", conv.Messages[1].Content)
}

func TestConversation_RecentHistory(t *testing.T) {
	conv := NewConversation("m")
	conv.SetSystemPrompt("sys")
	for i := 0; i < 5; i++ {
		conv.AddUserMessage(fmt.Sprintf("msg %d", i))
	}

	recent := conv.RecentHistory(2)
	require.Len(t, recent, 3)
	assert.Equal(t, RoleSystem, recent[0].Role)
	assert.Equal(t, "msg 3", recent[1].Content)
	assert.Equal(t, "msg 4", recent[2].Content)

	recent[1].Content = "changed"
	assert.Equal(t, "msg 3", conv.Messages[4].Content, "history is cloned")

	assert.Len(t, conv.RecentHistory(0), 6)
	assert.Len(t, conv.RecentHistory(100), 6)
}

func TestConversation_Meta(t *testing.T) {
	conv := NewConversation("llama")
	conv.AddUserMessage("hello there")

	meta := conv.Meta()
	assert.Equal(t, conv.ID, meta.ID)
	assert.Equal(t, "hello there", meta.Title)
	assert.Equal(t, "llama", meta.Model)
	assert.Equal(t, 1, meta.MessageCount)
	assert.Equal(t, "hello there", meta.Preview)
}

// =============================================================================
// MODEL INFO TESTS
// =============================================================================

func TestModelInfo_DisplayName(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"llama3", "llama3"},
		{"models/qwen2.5-7b-instruct.gguf", "qwen2.5-7b-instruct"},
		{`C:\models\mistral.bin`, "mistral"},
		{"org/", "org/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ModelInfo{ID: tt.id}.DisplayName(), tt.id)
	}
}

func TestFindAndSortModels(t *testing.T) {
	models := []ModelInfo{{ID: "b"}, {ID: "a"}}
	SortModels(models)
	assert.Equal(t, "a", models[0].ID)

	_, ok := FindModel(models, "b")
	assert.True(t, ok)
	_, ok = FindModel(models, "x")
	assert.False(t, ok)
}
