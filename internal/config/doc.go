// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for pocketchat.
//
// # Key Types
//
//   - Config: the complete configuration tree
//   - Duration: a time.Duration that reads and writes as "30s"
//   - ValidateErrors: every problem found by Validate
//
// # Usage
//
//	cfg, err := config.Load()
//	c, err := client.New(cfg.ClientConfig())
//
// Dotted keys address individual values:
//
//	v, _ := cfg.Get("server.url")
//	_ = cfg.Set("retry.max_retries", "5")
//
// # File Locations
//
//   - ~/.pocketchat/config.toml
//   - ~/.pocketchat/config.json
//   - Built-in defaults
//
// # Environment Overrides
//
// POCKETCHAT_SERVER_URL, POCKETCHAT_MODEL, POCKETCHAT_LOG_LEVEL and
// POCKETCHAT_STORAGE are applied after the file is read.
package config
