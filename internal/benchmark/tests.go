// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"strings"
)

// =============================================================================
// TEST DEFINITIONS
// =============================================================================

// Test is a single benchmark prompt.
type Test struct {
	Name      string
	Type      TestType
	Prompt    string
	Evaluator QualityEvaluator
}

// TestType categorizes a test.
type TestType string

const (
	TestTypeLatency     TestType = "latency"
	TestTypeSpeed       TestType = "speed"
	TestTypeInstruction TestType = "instruction"
	TestTypeExplanation TestType = "explanation"
)

// QualityEvaluator scores a reply from 0 to 100.
type QualityEvaluator func(response string) float64

// =============================================================================
// STANDARD TEST SUITE
// =============================================================================

// StandardTests returns the default suite.
func StandardTests() []Test {
	return []Test{
		{
			Name:   "latency",
			Type:   TestTypeLatency,
			Prompt: "Say 'Hello'",
			Evaluator: func(response string) float64 {
				if strings.Contains(strings.ToLower(response), "hello") {
					return 100
				}
				return 50
			},
		},
		{
			Name:   "speed",
			Type:   TestTypeSpeed,
			Prompt: "Write a haiku about programming.",
			Evaluator: func(response string) float64 {
				if lines := strings.Split(strings.TrimSpace(response), "\n"); len(lines) >= 3 {
					return 100
				}
				if len(response) > 10 {
					return 70
				}
				return 30
			},
		},
		{
			Name:   "instruction",
			Type:   TestTypeInstruction,
			Prompt: "List exactly 3 programming languages. Format: 1. Language",
			Evaluator: func(response string) float64 {
				score := 0.0
				for _, marker := range []string{"1.", "2.", "3."} {
					if strings.Contains(response, marker) {
						score += 25
					}
				}
				if !strings.Contains(response, "4.") {
					score += 25
				}
				return score
			},
		},
		{
			Name:   "explanation",
			Type:   TestTypeExplanation,
			Prompt: "Explain what a REST API is in simple terms.",
			Evaluator: func(response string) float64 {
				lower := strings.ToLower(response)
				score := 0.0
				for _, kw := range []string{"api", "http", "request", "response", "rest"} {
					if strings.Contains(lower, kw) {
						score += 15
					}
				}
				if strings.Count(response, ".") >= 3 {
					score += 15
				}
				if strings.Contains(lower, "for example") || strings.Contains(lower, "in other words") {
					score += 10
				}
				return min(score, 100)
			},
		},
	}
}

// SelectTests returns the standard tests with the given names, in suite
// order. Unknown names are returned separately.
func SelectTests(names []string) (selected []Test, unknown []string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = true
	}
	for _, t := range StandardTests() {
		if want[t.Name] {
			selected = append(selected, t)
			delete(want, t.Name)
		}
	}
	for _, n := range names {
		if key := strings.ToLower(strings.TrimSpace(n)); want[key] {
			unknown = append(unknown, n)
			delete(want, key)
		}
	}
	return selected, unknown
}

// NewSpeedTest creates a custom speed test for a prompt.
func NewSpeedTest(name, prompt string) Test {
	return Test{
		Name:   name,
		Type:   TestTypeSpeed,
		Prompt: prompt,
		Evaluator: func(response string) float64 {
			return min(float64(len(response))*5, 100)
		},
	}
}
