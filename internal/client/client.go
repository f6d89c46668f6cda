// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/pocketchat/internal/validate"
)

// Configuration constants.
const (
	// DefaultBaseURL points at a local OpenAI-compatible server.
	DefaultBaseURL = "http://127.0.0.1:8080"

	// DefaultTimeout bounds each non-streaming attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultStreamTimeout bounds a whole streaming response.
	DefaultStreamTimeout = 120 * time.Second

	// MaxResponseSize is the maximum accepted non-streaming body.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds the instance-scoped settings of a Client.
type Config struct {
	// BaseURL is the server root, without the /v1 suffix. A trailing slash is stripped.
	BaseURL string

	// Timeout for each non-streaming attempt (default: 30s)
	Timeout time.Duration

	// StreamTimeout for a whole streaming response (default: 120s)
	StreamTimeout time.Duration

	// Headers are sent with every request.
	Headers map[string]string

	// Retry controls automatic retries of non-streaming requests.
	Retry RetryPolicy

	// RequestsPerSecond limits outgoing attempts. Zero disables limiting.
	RequestsPerSecond float64
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       DefaultTimeout,
		StreamTimeout: DefaultStreamTimeout,
		Headers:       map[string]string{},
		Retry:         DefaultRetryPolicy(),
	}
}

// clone returns a deep copy so callers can hold it across a request.
func (c Config) clone() Config {
	c.Headers = maps.Clone(c.Headers)
	if c.Headers == nil {
		c.Headers = map[string]string{}
	}
	return c
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = DefaultStreamTimeout
	}
	if c.Retry == (RetryPolicy{}) {
		c.Retry = DefaultRetryPolicy()
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

// =============================================================================
// OBSERVER
// =============================================================================

// Observer receives request outcomes. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	// RequestDone is called once per attempt. err is nil on 2xx.
	RequestDone(method, path string, status int, d time.Duration, err error)

	// RetryScheduled is called before waiting for retry number attempt.
	RetryScheduled(method, path string, attempt int, delay time.Duration)
}

type nopObserver struct{}

func (nopObserver) RequestDone(string, string, int, time.Duration, error) {}
func (nopObserver) RetryScheduled(string, string, int, time.Duration)    {}

// =============================================================================
// CLIENT
// =============================================================================

// Client performs HTTP exchanges with an OpenAI-compatible server.
//
// The Client is safe for concurrent use. Setters only affect requests started
// after they return; each request works from a snapshot of the configuration.
//
// Example:
//
//	c, err := client.New(client.Config{BaseURL: "http://127.0.0.1:8080"})
//	if err != nil {
//	    return err // invalid base URL, re-prompt the user
//	}
//	defer c.Close()
//	resp, err := c.Get(ctx, "/v1/models")
type Client struct {
	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter

	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
	jitter     func() time.Duration

	// lifetime is cancelled by Close and merged into every request.
	lifetime context.Context
	stop     context.CancelFunc
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout should be
// zero; timeouts are applied per request through the context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver attaches a request observer such as a metrics recorder.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithJitter overrides the random delay added to every retry backoff.
func WithJitter(fn func() time.Duration) Option {
	return func(c *Client) {
		if fn != nil {
			c.jitter = fn
		}
	}
}

// New creates a client. It fails with a validation error if the base URL is
// not an absolute http(s) URL.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.clone().withDefaults()
	if err := validate.ServerURL(cfg.BaseURL); err != nil {
		return nil, err
	}

	lifetime, stop := context.WithCancel(context.Background())
	c := &Client{
		cfg: cfg,
		// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger:   slog.Default(),
		observer: nopObserver{},
		jitter:   defaultJitter,
		lifetime: lifetime,
		stop:     stop,
	}
	c.limiter = newLimiter(cfg.RequestsPerSecond)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Close cancels every request still in flight. The client must not be used
// afterwards.
func (c *Client) Close() {
	c.stop()
	c.httpClient.CloseIdleConnections()
}

// =============================================================================
// CONFIGURATION ACCESSORS
// =============================================================================

// Config returns a copy of the current configuration.
func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.clone()
}

// BaseURL returns the current base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.BaseURL
}

// SetBaseURL validates and replaces the base URL. An invalid URL is a
// validation error and leaves the previous URL in place.
func (c *Client) SetBaseURL(raw string) error {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if err := validate.ServerURL(raw); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg.BaseURL = raw
	c.mu.Unlock()
	return nil
}

// SetTimeout replaces the per-attempt timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.cfg.Timeout = d
	c.mu.Unlock()
}

// SetStreamTimeout replaces the streaming timeout.
func (c *Client) SetStreamTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.cfg.StreamTimeout = d
	c.mu.Unlock()
}

// SetHeader sets a default header. An empty value removes it.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	headers := maps.Clone(c.cfg.Headers)
	if headers == nil {
		headers = map[string]string{}
	}
	if value == "" {
		delete(headers, key)
	} else {
		headers[key] = value
	}
	c.cfg.Headers = headers
}

// SetRetryPolicy replaces the retry policy.
func (c *Client) SetRetryPolicy(p RetryPolicy) {
	c.mu.Lock()
	c.cfg.Retry = p.withDefaults()
	c.mu.Unlock()
}

// snapshot returns the configuration and limiter for one request.
func (c *Client) snapshot() (Config, *rate.Limiter) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.clone(), c.limiter
}
