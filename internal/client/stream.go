// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/util"
)

// =============================================================================
// STREAMING
// =============================================================================

// PostStream opens a streaming POST and returns the response body for an SSE
// parser to consume. The caller must close the body.
//
// Streams are attempted once. A partially delivered stream cannot be replayed
// safely, so no retry is made. StreamTimeout bounds the whole response, and
// cancelling ctx aborts the read in progress.
func (c *Client) PostStream(ctx context.Context, path string, body any, opts ...RequestOption) (io.ReadCloser, error) {
	cfg, limiter := c.snapshot()
	ro := requestOptions{timeout: cfg.StreamTimeout}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.headers == nil {
		ro.headers = map[string]string{}
	}
	ro.headers["Cache-Control"] = "no-cache"

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	reqCtx, cancelMerge := util.MergeContexts(ctx, c.lifetime)
	timeoutCtx, cancelTimeout := context.WithTimeout(reqCtx, ro.timeout)
	release := func() {
		cancelTimeout()
		cancelMerge()
	}

	start := time.Now()
	resp, err := c.send(timeoutCtx, cfg, limiter, ro.headers, http.MethodPost, path, payload, "text/event-stream", 0)
	if err != nil {
		err = c.translate(ctx, timeoutCtx, err)
		release()
		c.observer.RequestDone(http.MethodPost, path, 0, time.Since(start), err)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := readLimited(resp.Body)
		resp.Body.Close()
		release()
		err := serverError(resp.StatusCode, data)
		c.observer.RequestDone(http.MethodPost, path, resp.StatusCode, time.Since(start), err)
		return nil, err
	}

	c.logger.Debug("stream opened", "path", path, "status", resp.StatusCode, "duration", time.Since(start))
	c.observer.RequestDone(http.MethodPost, path, resp.StatusCode, time.Since(start), nil)
	return &streamBody{
		ReadCloser: resp.Body,
		release:    release,
		caller:     ctx,
		lifetime:   c.lifetime,
		timeout:    timeoutCtx,
	}, nil
}

// streamBody releases the request contexts when the body is closed. A read
// cut short by one of those contexts fails with a taxonomy error naming
// which one ended; other read failures are returned unchanged.
type streamBody struct {
	io.ReadCloser
	once    sync.Once
	release func()

	caller   context.Context
	lifetime context.Context
	timeout  context.Context
}

func (b *streamBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == nil || errors.Is(err, io.EOF) {
		return n, err
	}
	switch {
	case b.caller.Err() != nil:
		return n, apierr.FromContext(b.caller)
	case b.lifetime.Err() != nil:
		return n, apierr.Cancelled(err)
	case errors.Is(b.timeout.Err(), context.DeadlineExceeded):
		return n, apierr.Timeout("Stream timed out", err)
	}
	return n, err
}

func (b *streamBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}
