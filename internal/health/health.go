// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package health probes chat server connectivity.
//
// Checks never return errors. Failures are reported in the Status so callers
// can render them directly.
package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/catalog"
	"github.com/jeranaias/pocketchat/internal/client"
	"github.com/jeranaias/pocketchat/internal/util"
)

const (
	// DefaultTimeout bounds a single check.
	DefaultTimeout = 5 * time.Second

	// DefaultThreshold is the success rate at which a server counts as healthy.
	DefaultThreshold = 0.5

	// probeConcurrency caps parallel checks in Probe.
	probeConcurrency = 4
)

// =============================================================================
// TYPES
// =============================================================================

// Status is the result of a single check.
type Status struct {
	IsHealthy       bool          `json:"isHealthy"`
	Latency         time.Duration `json:"latency"`
	ModelsAvailable int           `json:"modelsAvailable"`
	Error           string        `json:"error,omitempty"`
	CheckedAt       time.Time     `json:"checkedAt"`
}

// Summary aggregates several sequential checks.
type Summary struct {
	Samples        []Status      `json:"samples"`
	SuccessRate    float64       `json:"successRate"`
	AverageLatency time.Duration `json:"averageLatency"`
	IsHealthy      bool          `json:"isHealthy"`
}

// ProbeResult pairs a candidate URL with its check.
type ProbeResult struct {
	URL    string `json:"url"`
	Status Status `json:"status"`
}

// =============================================================================
// CHECKER
// =============================================================================

// Checker runs connectivity checks against one server.
type Checker struct {
	models    *catalog.Service
	timeout   time.Duration
	threshold float64
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout overrides the per-check timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithThreshold sets the success rate required by CheckMultiple.
func WithThreshold(t float64) Option {
	return func(c *Checker) {
		if t >= 0 && t <= 1 {
			c.threshold = t
		}
	}
}

// NewChecker creates a checker over g.
func NewChecker(g catalog.Getter, opts ...Option) *Checker {
	c := &Checker{
		models:    catalog.NewService(g),
		timeout:   DefaultTimeout,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check lists models once with no retries.
func (c *Checker) Check(ctx context.Context) Status {
	start := time.Now()
	models, err := c.models.GetModels(ctx, client.WithTimeout(c.timeout), client.WithMaxRetries(0))
	status := Status{
		Latency:   time.Since(start),
		CheckedAt: start,
	}
	if err != nil {
		status.Error = apierr.UserMessage(err)
		return status
	}
	status.IsHealthy = true
	status.ModelsAvailable = len(models)
	return status
}

// CheckMultiple runs count checks with delay between them. It stops early
// if ctx is cancelled.
func (c *Checker) CheckMultiple(ctx context.Context, count int, delay time.Duration) Summary {
	if count < 1 {
		count = 1
	}

	samples := make([]Status, 0, count)
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := util.Sleep(ctx, delay); err != nil {
				break
			}
		}
		samples = append(samples, c.Check(ctx))
	}
	return c.summarize(samples)
}

func (c *Checker) summarize(samples []Status) Summary {
	s := Summary{Samples: samples}
	if len(samples) == 0 {
		return s
	}

	var healthy int
	var total time.Duration
	for _, st := range samples {
		if st.IsHealthy {
			healthy++
			total += st.Latency
		}
	}
	s.SuccessRate = float64(healthy) / float64(len(samples))
	if healthy > 0 {
		s.AverageLatency = total / time.Duration(healthy)
	}
	s.IsHealthy = s.SuccessRate >= c.threshold
	return s
}

// =============================================================================
// PROBE
// =============================================================================

// Probe checks several candidate server URLs concurrently. Results are in
// input order. cfg supplies everything but the base URL.
func Probe(ctx context.Context, urls []string, cfg client.Config, opts ...Option) []ProbeResult {
	results := make([]ProbeResult, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i, url := range urls {
		g.Go(func() error {
			results[i] = ProbeResult{URL: url, Status: probeOne(gctx, url, cfg, opts)}
			return nil
		})
	}
	_ = g.Wait() // workers never fail

	return results
}

func probeOne(ctx context.Context, url string, cfg client.Config, opts []Option) Status {
	cfg.BaseURL = url
	c, err := client.New(cfg)
	if err != nil {
		return Status{Error: apierr.UserMessage(err), CheckedAt: time.Now()}
	}
	defer c.Close()
	return NewChecker(c, opts...).Check(ctx)
}
