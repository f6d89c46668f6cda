// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: a chat with its ordered messages and metadata
//   - Message: a single message with role, content and streaming flag
//   - ModelInfo: an entry of the server's /v1/models listing
//   - Role: message role enumeration (user, assistant, system)
//
// A Conversation is not safe for concurrent use. The session package owns the
// active conversation and hands out clones to readers.
//
// # Invariant
//
// At most one message is streaming, it is the last message, and its role is
// assistant. The mutating methods refuse operations that would break this.
//
// # Usage
//
//	conv := model.NewConversation("llama3")
//	conv.AddUserMessage("Hello!")
//	reply, _ := conv.BeginAssistant()
//	conv.AppendToLast("Hi ")
//	conv.AppendToLast("there")
//	conv.FinalizeLast()
//	fmt.Println(reply.Content) // "Hi there"
package model
