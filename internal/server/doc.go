// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides a small OpenAI-compatible server that answers
// without a model behind it.
//
// It stands in for a real inference server when trying pocketchat out, and
// backs the end-to-end tests. Replies echo the last user message, streamed
// word by word when the request asks for a stream.
//
// # Endpoints
//
//   - POST /v1/chat/completions - chat completions, streaming or not
//   - GET  /v1/models          - configured model list
//   - GET  /health             - liveness and request counters
//
// # Usage
//
//	srv := server.New(server.WithModels("echo"), server.WithChunkDelay(20*time.Millisecond))
//	err := srv.ListenAndServe(ctx, "127.0.0.1:8080")
package server
