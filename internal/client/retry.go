// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"math"
	"math/rand/v2"
	"time"
)

// =============================================================================
// RETRY POLICY
// =============================================================================

// Default retry settings.
const (
	DefaultMaxRetries        = 3
	DefaultInitialDelay      = 1 * time.Second
	DefaultMaxDelay          = 10 * time.Second
	DefaultBackoffMultiplier = 2.0

	// maxJitter bounds the random delay added to every backoff.
	maxJitter = 1000 * time.Millisecond
)

// RetryPolicy controls how failed non-streaming requests are retried.
// It holds no state; the same policy may be shared by many clients.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay, excluding jitter.
	MaxDelay time.Duration

	// BackoffMultiplier scales the delay after every attempt.
	BackoffMultiplier float64
}

// DefaultRetryPolicy returns 3 retries starting at 1s, doubling, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        DefaultMaxRetries,
		InitialDelay:      DefaultInitialDelay,
		MaxDelay:          DefaultMaxDelay,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// Delay returns the backoff before retry number attempt (0-based), without
// jitter: min(InitialDelay * BackoffMultiplier^attempt, MaxDelay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	// Pow overflows to +Inf long before attempt gets unreasonable
	if p.MaxDelay > 0 && (math.IsInf(d, 0) || d > float64(p.MaxDelay)) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// withDefaults fills zero fields. MaxRetries of zero is a valid choice and is
// left alone; a negative value is clamped.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = DefaultBackoffMultiplier
	}
	return p
}

// defaultJitter returns a uniform random duration in [0, 1000ms).
func defaultJitter() time.Duration {
	return time.Duration(rand.Int64N(int64(maxJitter)))
}
