// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse decodes OpenAI-compatible Server-Sent Events streams.
//
// The package is layered:
//
//   - Parser turns bytes into events, independent of how the bytes were
//     chunked by the network.
//   - Stream reads a response body lazily and yields StreamChunks as an
//     iter.Seq2. It always closes the body.
//   - Accumulator folds chunks into the full text. Consume (callbacks) and
//     Fragments (pull iterator) are both built on it.
//
// # Usage
//
//	body, err := c.PostStream(ctx, "/v1/chat/completions", req)
//	if err != nil {
//		return err
//	}
//	result, err := sse.Consume(ctx, sse.Stream(ctx, body), sse.Callbacks{
//		OnContent: func(delta, full string) { fmt.Print(delta) },
//	})
package sse
