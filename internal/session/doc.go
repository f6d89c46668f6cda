// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives the active conversation.
//
// A Manager owns one conversation at a time and at most one in-flight send.
// It turns user input into streaming requests, applies reply text to the
// conversation as it arrives, persists the result and reports progress to
// a Notifier.
//
// # Key Types
//
//   - Manager: the orchestrator
//   - Event: a progress or failure notification
//   - Notifier: caller-supplied event sink
//
// # Usage
//
//	mgr := session.NewManager(chatService, "llama3",
//		session.WithRepository(repo),
//		session.WithNotifier(func(ev session.Event) { ... }),
//	)
//	err := mgr.Send(ctx, "Hello")
//
// # Errors
//
// Cancelled sends produce no error event. Validation failures are marked
// Inline so the caller can show them next to the input. Everything else is
// Transient.
package session
