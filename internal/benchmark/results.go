// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// Result holds the benchmark results for one model.
type Result struct {
	Model           string        `json:"model"`
	StartTime       time.Time     `json:"start_time"`
	Duration        time.Duration `json:"duration"`
	Tests           []TestResult  `json:"tests"`
	AvgTTFT         time.Duration `json:"avg_ttft"`
	AvgChunksPerSec float64       `json:"avg_chunks_per_sec"`
	AvgQualityScore float64       `json:"avg_quality_score"`
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
}

// TestResult is the outcome of one test.
type TestResult struct {
	Name         string        `json:"name"`
	Type         TestType      `json:"type"`
	Status       Status        `json:"status"`
	Duration     time.Duration `json:"duration"`
	TTFT         time.Duration `json:"ttft"`
	Chunks       int           `json:"chunks"`
	ChunksPerSec float64       `json:"chunks_per_sec"`
	FinishReason string        `json:"finish_reason,omitempty"`

	// QualityScore is 0-100, or -1 when the test has no evaluator.
	QualityScore float64 `json:"quality_score"`
	Error        string  `json:"error,omitempty"`

	err error
}

// Status is the outcome of a test.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Comparison holds results for several models.
type Comparison struct {
	Models    []string           `json:"models"`
	Results   map[string]*Result `json:"results"`
	StartTime time.Time          `json:"start_time"`
	Duration  time.Duration      `json:"duration"`
}

// =============================================================================
// RESULT COMPUTATION
// =============================================================================

// finish sets the duration and aggregates over passed tests.
func (r *Result) finish(end time.Time) {
	r.Duration = end.Sub(r.StartTime)

	var ttft time.Duration
	var rate, quality float64
	var ttftN, rateN, qualityN int
	r.Passed, r.Failed = 0, 0

	for _, t := range r.Tests {
		if t.Status != StatusPassed {
			r.Failed++
			continue
		}
		r.Passed++
		if t.TTFT > 0 {
			ttft += t.TTFT
			ttftN++
		}
		if t.ChunksPerSec > 0 {
			rate += t.ChunksPerSec
			rateN++
		}
		if t.QualityScore >= 0 {
			quality += t.QualityScore
			qualityN++
		}
	}

	r.AvgTTFT, r.AvgChunksPerSec, r.AvgQualityScore = 0, 0, 0
	if ttftN > 0 {
		r.AvgTTFT = ttft / time.Duration(ttftN)
	}
	if rateN > 0 {
		r.AvgChunksPerSec = rate / float64(rateN)
	}
	if qualityN > 0 {
		r.AvgQualityScore = quality / float64(qualityN)
	}
}

func (r *Result) firstError() error {
	for _, t := range r.Tests {
		if t.err != nil {
			return t.err
		}
	}
	return nil
}

// =============================================================================
// RESULT ANALYSIS
// =============================================================================

// Ranked returns results ordered fastest first by average chunk rate, with
// models that passed nothing last. Ties keep the order models were given.
func (c *Comparison) Ranked() []*Result {
	out := make([]*Result, 0, len(c.Models))
	for _, id := range c.Models {
		if r := c.Results[id]; r != nil {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Passed > 0) != (out[j].Passed > 0) {
			return out[i].Passed > 0
		}
		return out[i].AvgChunksPerSec > out[j].AvgChunksPerSec
	})
	return out
}

// Fastest returns the model with the highest chunk rate, or nil.
func (c *Comparison) Fastest() *Result {
	ranked := c.Ranked()
	if len(ranked) == 0 || ranked[0].Passed == 0 {
		return nil
	}
	return ranked[0]
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// FormatTTFT formats time to first token for display.
func FormatTTFT(d time.Duration) string {
	if d == 0 {
		return "N/A"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// FormatRate formats a chunk rate for display.
func FormatRate(perSec float64) string {
	if perSec == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f/s", perSec)
}

// FormatQualityScore formats a quality score for display.
func FormatQualityScore(score float64) string {
	if score < 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.0f%%", score)
}
