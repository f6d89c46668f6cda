// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/chat"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/sse"
)

// ErrAllFailed is returned by RunComparison when no model completed a test.
var ErrAllFailed = errors.New("all models failed to run")

// Streamer sends a streaming chat completion. *chat.Service satisfies it.
type Streamer interface {
	SendMessageStream(ctx context.Context, messages []*model.Message, modelID string, opts chat.StreamOptions) (sse.Result, error)
}

// =============================================================================
// BENCHMARK RUNNER
// =============================================================================

// Runner executes benchmark suites against models. Models are run one after
// another so they do not compete for the same server.
type Runner struct {
	chat      Streamer
	tests     []Test
	maxTokens int
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithTests replaces the standard suite.
func WithTests(tests ...Test) Option {
	return func(r *Runner) { r.tests = tests }
}

// WithMaxTokens caps each reply. Zero leaves the server default.
func WithMaxTokens(n int) Option {
	return func(r *Runner) { r.maxTokens = n }
}

// WithLogger sets the logger for per-test results.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner using the standard suite.
func NewRunner(s Streamer, opts ...Option) *Runner {
	r := &Runner{
		chat:   s,
		tests:  StandardTests(),
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the suite on one model. Failed tests are recorded in the
// result. The returned error is non-nil only when ctx is done.
func (r *Runner) Run(ctx context.Context, modelID string) (*Result, error) {
	result := &Result{
		Model:     modelID,
		StartTime: r.now(),
		Tests:     make([]TestResult, 0, len(r.tests)),
	}

	for _, test := range r.tests {
		if err := ctx.Err(); err != nil {
			result.finish(r.now())
			return result, apierr.Cancelled(err)
		}
		tr := r.runTest(ctx, modelID, test)
		r.logger.Debug("benchmark test done",
			"model", modelID, "test", test.Name, "status", tr.Status,
			"ttft", tr.TTFT, "duration", tr.Duration)
		result.Tests = append(result.Tests, tr)
	}

	result.finish(r.now())
	return result, nil
}

// runTest streams one prompt and measures time to first content and
// chunk rate.
func (r *Runner) runTest(ctx context.Context, modelID string, test Test) TestResult {
	tr := TestResult{Name: test.Name, Type: test.Type, Status: StatusFailed}
	if test.Prompt == "" {
		tr.Error = "empty prompt"
		return tr
	}

	opts := chat.StreamOptions{}
	if r.maxTokens > 0 {
		n := r.maxTokens
		opts.MaxTokens = &n
	}

	var first time.Time
	opts.Callbacks.OnContent = func(delta, _ string) {
		if first.IsZero() {
			first = r.now()
		}
	}

	start := r.now()
	res, err := r.chat.SendMessageStream(ctx, []*model.Message{model.NewUserMessage(test.Prompt)}, modelID, opts)
	end := r.now()

	tr.Duration = end.Sub(start)
	if err != nil {
		tr.Error = apierr.UserMessage(err)
		tr.err = err
		return tr
	}

	if !first.IsZero() {
		tr.TTFT = first.Sub(start)
	}
	tr.Chunks = res.Chunks
	if gen := end.Sub(first); !first.IsZero() && gen > 0 {
		tr.ChunksPerSec = float64(res.Chunks) / gen.Seconds()
	}
	tr.FinishReason = res.FinishReason
	tr.QualityScore = -1
	if test.Evaluator != nil {
		tr.QualityScore = test.Evaluator(res.Content)
	}
	tr.Status = StatusPassed
	return tr
}

// RunComparison runs the suite on every model. A comparison is returned
// even when some models fail. The error wraps ErrAllFailed, and the first
// failure, when no model passed a single test.
func (r *Runner) RunComparison(ctx context.Context, modelIDs []string) (*Comparison, error) {
	cmp := &Comparison{
		Models:    append([]string(nil), modelIDs...),
		Results:   make(map[string]*Result, len(modelIDs)),
		StartTime: r.now(),
	}

	var firstErr error
	passed := false
	for _, id := range modelIDs {
		result, err := r.Run(ctx, id)
		cmp.Results[id] = result
		if err != nil {
			cmp.Duration = r.now().Sub(cmp.StartTime)
			return cmp, err
		}
		if result.Passed > 0 {
			passed = true
		} else if firstErr == nil {
			firstErr = result.firstError()
		}
	}
	cmp.Duration = r.now().Sub(cmp.StartTime)

	if !passed {
		if firstErr != nil {
			return cmp, fmt.Errorf("%w: %w", ErrAllFailed, firstErr)
		}
		return cmp, ErrAllFailed
	}
	return cmp, nil
}
