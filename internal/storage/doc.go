// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists pocketchat state.
//
// Persistence is a small key-value contract (Store) with three backends.
// Higher-level helpers keep typed records under well-known keys.
//
// # Key Types
//
//   - Store: key-value contract (Get, Set, Remove)
//   - FileStore: one JSON file per key
//   - SQLiteStore: single kv table, WAL journal
//   - MemoryStore: in-process, for tests
//   - ChatRepository: conversation list and active selection
//
// # Usage
//
//	store, err := storage.NewFileStore(dataDir)
//	repo := storage.NewChatRepository(store)
//	err = repo.Save(ctx, conv)
//	metas, err := repo.List(ctx)
//
// # Storage Location
//
// The file backend writes to ~/.pocketchat/data/ and the SQLite backend to
// ~/.pocketchat/pocketchat.db unless configured otherwise.
package storage
