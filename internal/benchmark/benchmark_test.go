// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/chat"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/sse"
)

// fakeStreamer answers every prompt with a fixed reply, except for models
// listed in failing.
type fakeStreamer struct {
	mu        sync.Mutex
	reply     string
	chunks    int
	failing   map[string]error
	maxTokens []*int
}

func (f *fakeStreamer) SendMessageStream(_ context.Context, _ []*model.Message, modelID string, opts chat.StreamOptions) (sse.Result, error) {
	f.mu.Lock()
	f.maxTokens = append(f.maxTokens, opts.MaxTokens)
	f.mu.Unlock()

	if err := f.failing[modelID]; err != nil {
		return sse.Result{}, err
	}
	opts.Callbacks.OnContent(f.reply, f.reply)
	return sse.Result{Content: f.reply, FinishReason: "stop", Chunks: f.chunks}, nil
}

// steppingClock advances 10ms on every call.
func steppingClock() func() time.Time {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(10 * time.Millisecond)
		return t
	}
}

func newTestRunner(s Streamer, opts ...Option) *Runner {
	r := NewRunner(s, opts...)
	r.now = steppingClock()
	return r
}

func TestRun_MeasuresEachTest(t *testing.T) {
	s := &fakeStreamer{reply: "Hello\n1. Go\n2. Rust\n3. Zig", chunks: 5}
	r := newTestRunner(s, WithMaxTokens(64))

	result, err := r.Run(context.Background(), "alpha")
	require.NoError(t, err)

	require.Len(t, result.Tests, len(StandardTests()))
	assert.Equal(t, len(StandardTests()), result.Passed)
	assert.Zero(t, result.Failed)

	first := result.Tests[0]
	assert.Equal(t, StatusPassed, first.Status)
	assert.Equal(t, 10*time.Millisecond, first.TTFT)
	assert.Equal(t, 20*time.Millisecond, first.Duration)
	assert.InDelta(t, 500.0, first.ChunksPerSec, 0.001)
	assert.Equal(t, 100.0, first.QualityScore, "reply says hello")

	assert.Equal(t, 10*time.Millisecond, result.AvgTTFT)
	assert.InDelta(t, 500.0, result.AvgChunksPerSec, 0.001)

	for _, mt := range s.maxTokens {
		require.NotNil(t, mt)
		assert.Equal(t, 64, *mt)
	}
}

func TestRun_RecordsFailures(t *testing.T) {
	s := &fakeStreamer{failing: map[string]error{"down": apierr.Network("no route", nil)}}
	r := newTestRunner(s, WithTests(NewSpeedTest("custom", "go")))

	result, err := r.Run(context.Background(), "down")
	require.NoError(t, err, "failed tests are part of the result")
	require.Len(t, result.Tests, 1)
	assert.Equal(t, StatusFailed, result.Tests[0].Status)
	assert.NotEmpty(t, result.Tests[0].Error)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.AvgTTFT)
}

func TestRun_EmptyPrompt(t *testing.T) {
	r := newTestRunner(&fakeStreamer{}, WithTests(Test{Name: "blank"}))

	result, err := r.Run(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "empty prompt", result.Tests[0].Error)
}

func TestRun_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestRunner(&fakeStreamer{}).Run(ctx, "alpha")
	assert.True(t, apierr.IsKind(err, apierr.KindCancelled))
	assert.Empty(t, result.Tests)
}

func TestRunComparison(t *testing.T) {
	s := &fakeStreamer{reply: "Hello", chunks: 3, failing: map[string]error{"down": apierr.Network("no route", nil)}}
	r := newTestRunner(s, WithTests(NewSpeedTest("custom", "go")))

	cmp, err := r.RunComparison(context.Background(), []string{"down", "alpha"})
	require.NoError(t, err)
	require.Len(t, cmp.Results, 2)

	ranked := cmp.Ranked()
	assert.Equal(t, "alpha", ranked[0].Model)
	assert.Equal(t, "down", ranked[1].Model)
	require.NotNil(t, cmp.Fastest())
	assert.Equal(t, "alpha", cmp.Fastest().Model)
}

func TestRunComparison_AllFailed(t *testing.T) {
	cause := apierr.Network("no route", nil)
	s := &fakeStreamer{failing: map[string]error{"a": cause, "b": cause}}
	r := newTestRunner(s, WithTests(NewSpeedTest("custom", "go")))

	cmp, err := r.RunComparison(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllFailed))
	assert.Equal(t, apierr.KindNetwork, apierr.KindOf(err), "cause stays visible")
	assert.Nil(t, cmp.Fastest())
}

func TestSelectTests(t *testing.T) {
	selected, unknown := SelectTests([]string{"Speed", "bogus", "latency"})
	require.Len(t, selected, 2)
	assert.Equal(t, "latency", selected[0].Name, "suite order is kept")
	assert.Equal(t, "speed", selected[1].Name)
	assert.Equal(t, []string{"bogus"}, unknown)
}

func TestStandardEvaluators(t *testing.T) {
	tests := map[string]struct {
		reply string
		want  float64
	}{
		"latency":     {"hello!", 100},
		"speed":       {"one\ntwo\nthree", 100},
		"instruction": {"1. Go\n2. Rust\n3. Zig", 100},
		"explanation": {"", 0},
	}
	for _, test := range StandardTests() {
		tt, ok := tests[test.Name]
		require.True(t, ok, test.Name)
		assert.Equal(t, tt.want, test.Evaluator(tt.reply), test.Name)
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "N/A", FormatTTFT(0))
	assert.Equal(t, "250ms", FormatTTFT(250*time.Millisecond))
	assert.Equal(t, "1.50s", FormatTTFT(1500*time.Millisecond))
	assert.Equal(t, "N/A", FormatRate(0))
	assert.Equal(t, "42.5/s", FormatRate(42.5))
	assert.Equal(t, "N/A", FormatQualityScore(-1))
	assert.Equal(t, "80%", FormatQualityScore(80))
}
