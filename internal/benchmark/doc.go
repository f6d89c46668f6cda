// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package benchmark measures how quickly models on the server answer.
//
// Each test streams one prompt and records the time to the first content
// chunk and the chunk rate after it. Most local servers send one token per
// chunk, so the rate approximates tokens per second.
//
// # Usage
//
//	runner := benchmark.NewRunner(chatService, benchmark.WithMaxTokens(128))
//	cmp, err := runner.RunComparison(ctx, []string{"llama3", "qwen2.5"})
//	if fastest := cmp.Fastest(); fastest != nil {
//	    fmt.Println(fastest.Model, benchmark.FormatRate(fastest.AvgChunksPerSec))
//	}
package benchmark
