// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"iter"
	"strings"

	"github.com/jeranaias/pocketchat/internal/apierr"
)

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Result is the folded outcome of a stream.
type Result struct {
	Content      string
	FinishReason string
	Chunks       int
}

// Accumulator folds stream chunks into the full response text.
// The zero value is ready to use.
type Accumulator struct {
	content strings.Builder
	finish  string
	chunks  int
}

// Add folds one chunk and returns its text delta.
func (a *Accumulator) Add(c *StreamChunk) string {
	a.chunks++
	delta := ExtractContent(c)
	a.content.WriteString(delta)
	if reason := FinishReason(c); reason != "" {
		a.finish = reason
	}
	return delta
}

// Content returns the text accumulated so far.
func (a *Accumulator) Content() string {
	return a.content.String()
}

// Result returns the current fold.
func (a *Accumulator) Result() Result {
	return Result{
		Content:      a.content.String(),
		FinishReason: a.finish,
		Chunks:       a.chunks,
	}
}

// =============================================================================
// CALLBACK DRIVER
// =============================================================================

// Callbacks receive stream progress in arrival order. Any may be nil.
type Callbacks struct {
	// OnChunk is called for every decoded chunk.
	OnChunk func(chunk *StreamChunk)

	// OnContent is called for every non-empty text delta with the text so far.
	OnContent func(delta, full string)

	// OnComplete is called once when the stream ends cleanly.
	OnComplete func(result Result)

	// OnError is called once when the stream fails.
	OnError func(err error)
}

// Consume drives seq to completion through cb.
//
// Exactly one of OnComplete or OnError fires unless the stream is cancelled.
// Once ctx ends no further callbacks fire and the partial result is returned
// with a cancelled error, or a timeout error if ctx hit its deadline.
func Consume(ctx context.Context, seq iter.Seq2[*StreamChunk, error], cb Callbacks) (Result, error) {
	var acc Accumulator
	for chunk, err := range seq {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			if cb.OnError != nil && !apierr.IsKind(err, apierr.KindCancelled) {
				cb.OnError(err)
			}
			return acc.Result(), err
		}

		delta := acc.Add(chunk)
		if cb.OnChunk != nil {
			cb.OnChunk(chunk)
		}
		if delta != "" && cb.OnContent != nil {
			cb.OnContent(delta, acc.Content())
		}
	}

	if e := apierr.FromContext(ctx); e != nil {
		return acc.Result(), e
	}
	result := acc.Result()
	if cb.OnComplete != nil {
		cb.OnComplete(result)
	}
	return result, nil
}

// =============================================================================
// PULL ADAPTER
// =============================================================================

// Fragments adapts seq into a sequence of non-empty text deltas. A stream
// failure is yielded as the final element. If ctx ends the sequence ends with
// a cancelled or timeout error so pull consumers can tell it from completion.
func Fragments(ctx context.Context, seq iter.Seq2[*StreamChunk, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var acc Accumulator
		for chunk, err := range seq {
			if err != nil {
				yield("", err)
				return
			}
			if delta := acc.Add(chunk); delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}
		if e := apierr.FromContext(ctx); e != nil {
			yield("", e)
		}
	}
}
