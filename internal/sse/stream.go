// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/util"
)

// defaultReadSize is the read buffer used for the response body.
const defaultReadSize = 4096

// Option configures Stream.
type Option func(*streamOptions)

type streamOptions struct {
	logger   *slog.Logger
	readSize int
}

// WithLogger sets the logger used to report skipped chunks.
func WithLogger(logger *slog.Logger) Option {
	return func(o *streamOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithReadSize sets the size of each body read.
func WithReadSize(n int) Option {
	return func(o *streamOptions) {
		if n > 0 {
			o.readSize = n
		}
	}
}

// =============================================================================
// STREAM
// =============================================================================

// Stream returns a lazy sequence of the chunks in an SSE response body.
//
// The sequence ends without an error at [DONE], at end of input, or when ctx
// is cancelled. Malformed JSON payloads are logged and skipped. A read failure
// that is already an *apierr.Error is yielded as is; any other read failure is
// yielded once as a stream error. Either ends the sequence. The body is
// closed on every exit path, including the consumer breaking out of the loop.
//
// The sequence can be iterated only once; a second iteration yields a stream
// error.
func Stream(ctx context.Context, body io.ReadCloser, opts ...Option) iter.Seq2[*StreamChunk, error] {
	o := streamOptions{logger: slog.Default(), readSize: defaultReadSize}
	for _, opt := range opts {
		opt(&o)
	}

	var used atomic.Bool
	return func(yield func(*StreamChunk, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(nil, apierr.Stream("Stream already consumed", nil))
			return
		}
		defer body.Close()

		// Closing the body unblocks a Read parked on the network
		stop := context.AfterFunc(ctx, func() { body.Close() })
		defer stop()

		parser := NewParser()
		buf := make([]byte, o.readSize)

		// emit forwards events and reports whether reading should continue.
		emit := func(events []Event) bool {
			for _, ev := range events {
				switch ev.Kind {
				case EventDone:
					return false
				case EventSkipped:
					o.logger.Warn("skipping malformed stream chunk",
						"error", ev.Err, "data", util.TruncateRunes(ev.Raw, 200))
				case EventChunk:
					if ctx.Err() != nil {
						return false
					}
					if !yield(ev.Chunk, nil) {
						return false
					}
				}
			}
			return true
		}

		for {
			if ctx.Err() != nil {
				return
			}

			n, err := body.Read(buf)
			if n > 0 {
				events, perr := parser.Feed(buf[:n])
				if !emit(events) {
					return
				}
				if perr != nil {
					yield(nil, apierr.Stream("Malformed event stream", perr))
					return
				}
			}

			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, io.EOF) {
					emit(parser.Flush())
					return
				}
				if e, ok := apierr.As(err); ok {
					yield(nil, e)
					return
				}
				yield(nil, apierr.Stream("Stream interrupted", err))
				return
			}
		}
	}
}
