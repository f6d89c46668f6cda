// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and execution for pocketchat.
//
// # Commands
//
//   - chat: Interactive REPL (the default)
//   - ask: One-shot question, streamed or not
//   - models: List models on the server
//   - health: Sample or probe server health
//   - chats: List, search, show, export and delete saved chats
//   - config: Show, get, set and initialize the configuration
//   - version, help
//
// # Usage
//
//	os.Exit(cli.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
//
// Run returns a process exit code; see the Exit* constants. With --json,
// every command writes a single JSONResponse envelope to stdout.
package cli
