// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records local usage metrics for pocketchat.
//
// Metrics live on a private Prometheus registry. Nothing is exported over
// the network; the chat REPL prints them on request with /stats.
//
// # Key Types
//
//   - Metrics: request, retry and stream counters; implements client.Observer
//   - Summary: plain totals for display
//
// # Usage
//
//	metrics := telemetry.New()
//	c, _ := client.New(cfg, client.WithObserver(metrics))
//	...
//	metrics.WriteText(os.Stdout)
//
// # Privacy
//
// Only counts and durations are recorded. Message content is never stored.
package telemetry
