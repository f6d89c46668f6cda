// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat sends conversations to an OpenAI-compatible chat completions
// endpoint.
//
// # Key Types
//
//   - Service: single-shot and streaming completions over a Transport
//   - Options: per-call sampling parameters (nil fields use the defaults)
//   - StreamOptions: Options plus progress callbacks
//
// # Usage
//
//	svc := chat.NewService(apiClient, chat.WithDefaults(params))
//	reply, err := svc.SendMessage(ctx, conv.Messages, "llama3", chat.Options{})
//
//	for text, err := range svc.StreamMessage(ctx, conv.Messages, "llama3", chat.Options{}) {
//		if err != nil {
//			return err
//		}
//		fmt.Print(text)
//	}
//
// Requests are validated before anything is sent. Streaming is never retried.
package chat
