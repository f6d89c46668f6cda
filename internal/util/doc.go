// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across pocketchat packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth: display-width truncation for terminal columns
//
// Context Utilities:
//   - MergeContexts: derive a context cancelled when any parent is
//   - Sleep: a cancellable wait
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	ctx, cancel := util.MergeContexts(callerCtx, clientCtx)
//	defer cancel()
//
//	if err := util.Sleep(ctx, delay); err != nil {
//		return err // cancelled while waiting
//	}
package util
