// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"context"
	"time"
)

// =============================================================================
// CONTEXT COMPOSITION
// =============================================================================

// MergeContexts returns a context derived from the first parent that is also
// cancelled as soon as any other parent is done. The returned context's Err
// and Cause reflect whichever parent fired first. Nil parents are ignored.
//
// The cancel func must be called to release the registrations on the other
// parents.
func MergeContexts(parents ...context.Context) (context.Context, context.CancelFunc) {
	var base context.Context
	rest := make([]context.Context, 0, len(parents))
	for _, p := range parents {
		if p == nil {
			continue
		}
		if base == nil {
			base = p
			continue
		}
		rest = append(rest, p)
	}
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithCancelCause(base)
	stops := make([]func() bool, 0, len(rest))
	for _, p := range rest {
		p := p
		if p.Err() != nil {
			cancel(contextCause(p))
			continue
		}
		stops = append(stops, context.AfterFunc(p, func() {
			cancel(contextCause(p))
		}))
	}

	return ctx, func() {
		for _, stop := range stops {
			stop()
		}
		cancel(context.Canceled)
	}
}

// contextCause returns the cause of a done context, falling back to Err.
func contextCause(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}

// Sleep waits for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
