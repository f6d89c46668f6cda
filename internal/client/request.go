// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/util"
)

// Response is a fully read non-streaming response.
type Response struct {
	Data   []byte
	Status int
	Header http.Header
}

// =============================================================================
// REQUEST OPTIONS
// =============================================================================

type requestOptions struct {
	timeout    time.Duration
	maxRetries int
	headers    map[string]string
}

// RequestOption overrides client settings for a single call.
type RequestOption func(*requestOptions)

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxRetries overrides the retry count. Zero means a single attempt.
func WithMaxRetries(n int) RequestOption {
	return func(o *requestOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithHeader adds a header to this call only.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// =============================================================================
// PUBLIC METHODS
// =============================================================================

// Get performs a GET request with retries.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs a POST request with a JSON body and retries.
func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, body, opts...)
}

// GetJSON performs a GET request and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any, opts ...RequestOption) error {
	resp, err := c.Get(ctx, path, opts...)
	if err != nil {
		return err
	}
	return decodeJSON(resp.Data, out)
}

// PostJSON performs a POST request and decodes the JSON body into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	resp, err := c.Post(ctx, path, body, opts...)
	if err != nil {
		return err
	}
	return decodeJSON(resp.Data, out)
}

func decodeJSON(data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apierr.Parse("Failed to decode response", err)
	}
	return nil
}

// Request performs an HTTP exchange, making up to 1+MaxRetries attempts.
//
// Non-2xx responses become server errors. Only errors that apierr.IsRetryable
// accepts are retried; cancellation ends the loop at once. After the last
// attempt the last observed error is returned.
func (c *Client) Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	cfg, limiter := c.snapshot()
	ro := requestOptions{timeout: cfg.Timeout, maxRetries: cfg.Retry.MaxRetries}
	for _, opt := range opts {
		opt(&ro)
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= ro.maxRetries; attempt++ {
		resp, err := c.attempt(ctx, cfg, limiter, ro, method, path, payload, attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || apierr.IsKind(err, apierr.KindCancelled) || !apierr.IsRetryable(err) || attempt == ro.maxRetries {
			break
		}

		// RELIABILITY: Exponential backoff with jitter avoids synchronized retries
		delay := cfg.Retry.Delay(attempt) + c.jitter()
		c.logger.Warn("retrying request",
			"method", method, "path", path,
			"attempt", attempt+1, "delay", delay, "error", err)
		c.observer.RetryScheduled(method, path, attempt+1, delay)

		waitCtx, cancel := util.MergeContexts(ctx, c.lifetime)
		werr := util.Sleep(waitCtx, delay)
		if werr != nil {
			err := apierr.FromContext(waitCtx)
			cancel()
			return nil, err
		}
		cancel()
	}
	return nil, lastErr
}

// =============================================================================
// SINGLE ATTEMPT
// =============================================================================

func (c *Client) attempt(ctx context.Context, cfg Config, limiter *rate.Limiter, ro requestOptions, method, path string, payload []byte, attempt int) (*Response, error) {
	reqCtx, cancelMerge := util.MergeContexts(ctx, c.lifetime)
	defer cancelMerge()
	timeoutCtx, cancelTimeout := context.WithTimeout(reqCtx, ro.timeout)
	defer cancelTimeout()

	start := time.Now()
	resp, err := c.send(timeoutCtx, cfg, limiter, ro.headers, method, path, payload, "application/json", attempt)
	if err != nil {
		err = c.translate(ctx, timeoutCtx, err)
		c.observer.RequestDone(method, path, 0, time.Since(start), err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body)
	if err != nil {
		err = c.translate(ctx, timeoutCtx, err)
		c.observer.RequestDone(method, path, resp.StatusCode, time.Since(start), err)
		return nil, err
	}

	c.logger.Debug("api response",
		"method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := serverError(resp.StatusCode, data)
		c.observer.RequestDone(method, path, resp.StatusCode, time.Since(start), err)
		return nil, err
	}

	c.observer.RequestDone(method, path, resp.StatusCode, time.Since(start), nil)
	return &Response{Data: data, Status: resp.StatusCode, Header: resp.Header}, nil
}

// send builds and dispatches one HTTP request.
func (c *Client) send(ctx context.Context, cfg Config, limiter *rate.Limiter, extra map[string]string, method, path string, payload []byte, accept string, attempt int) (*http.Response, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, apierr.Timeout("Rate limit wait would exceed the request deadline", err)
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, joinURL(cfg.BaseURL, path), body)
	if err != nil {
		return nil, apierr.Validation("baseUrl", "Invalid request URL")
	}

	req.Header.Set("Accept", accept)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	// Headers and bodies are not logged; they may carry credentials or chat text
	c.logger.Debug("api request", "method", method, "path", path, "attempt", attempt+1)

	return c.httpClient.Do(req)
}

// translate classifies a transport failure. The caller's context is checked
// first: an explicit cancel is cancelled and its own deadline is a timeout.
// Closing the client is a cancel; an expired attempt timeout is a timeout.
func (c *Client) translate(callerCtx, attemptCtx context.Context, err error) error {
	if e, ok := apierr.As(err); ok {
		return e
	}
	if e := apierr.FromContext(callerCtx); e != nil {
		return e
	}
	if c.lifetime.Err() != nil {
		return apierr.Cancelled(err)
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return apierr.Timeout("Request timed out", err)
	}
	return apierr.Classify(err)
}

// =============================================================================
// HELPERS
// =============================================================================

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, apierr.Parse("Failed to encode request body", err)
	}
	return data, nil
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// readLimited reads at most MaxResponseSize bytes.
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxResponseSize {
		return nil, apierr.Parse(fmt.Sprintf("Response exceeds %d bytes", MaxResponseSize), nil)
	}
	return data, nil
}

// apiErrorResponse is the OpenAI error envelope. Some servers send the
// error as a bare string instead of an object.
type apiErrorResponse struct {
	Error json.RawMessage `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// serverError builds a server error, preferring error.message from the body.
func serverError(status int, body []byte) *apierr.Error {
	var env apiErrorResponse
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var detail apiErrorDetail
		if err := json.Unmarshal(env.Error, &detail); err == nil && detail.Message != "" {
			return apierr.Server(status, detail.Message)
		}
		var text string
		if err := json.Unmarshal(env.Error, &text); err == nil && text != "" {
			return apierr.Server(status, text)
		}
	}
	return apierr.Server(status, "")
}
