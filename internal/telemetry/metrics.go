// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/jeranaias/pocketchat/internal/apierr"
)

// Stream outcomes.
const (
	OutcomeComplete  = "complete"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// =============================================================================
// METRICS
// =============================================================================

// Metrics collects usage counters. It is safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    prometheus.Counter
	streamsTotal    *prometheus.CounterVec
	streamChunks    prometheus.Counter
	streamBytes     prometheus.Counter
	timeToFirst     prometheus.Histogram

	// Plain totals for Summary
	requests  atomic.Int64
	failures  atomic.Int64
	retries   atomic.Int64
	streams   atomic.Int64
	chunks    atomic.Int64
	received  atomic.Int64
	latencyNs atomic.Int64
}

// New creates metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketchat_requests_total",
			Help: "HTTP attempts by method, path and outcome",
		}, []string{"method", "path", "outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pocketchat_request_duration_seconds",
			Help:    "HTTP attempt duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}, []string{"path"}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pocketchat_retries_total",
			Help: "Retries scheduled after a transient failure",
		}),
		streamsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pocketchat_streams_total",
			Help: "Streaming replies by outcome",
		}, []string{"outcome"}),
		streamChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "pocketchat_stream_chunks_total",
			Help: "Stream chunks received",
		}),
		streamBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "pocketchat_stream_content_bytes_total",
			Help: "Bytes of reply text received over streams",
		}),
		timeToFirst: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pocketchat_stream_first_token_seconds",
			Help:    "Time from sending a message to the first reply text",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// =============================================================================
// CLIENT OBSERVER
// =============================================================================

// RequestDone records one HTTP attempt.
func (m *Metrics) RequestDone(method, path string, status int, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apierr.KindOf(err).String()
		m.failures.Add(1)
	}
	m.requestsTotal.WithLabelValues(method, path, outcome).Inc()
	m.requestDuration.WithLabelValues(path).Observe(d.Seconds())
	m.requests.Add(1)
	m.latencyNs.Add(int64(d))
}

// RetryScheduled records a retry.
func (m *Metrics) RetryScheduled(method, path string, attempt int, delay time.Duration) {
	m.retriesTotal.Inc()
	m.retries.Add(1)
}

// =============================================================================
// STREAM OBSERVER
// =============================================================================

// StreamChunk records one received chunk and its text delta.
func (m *Metrics) StreamChunk(delta string) {
	m.streamChunks.Inc()
	m.streamBytes.Add(float64(len(delta)))
	m.chunks.Add(1)
	m.received.Add(int64(len(delta)))
}

// FirstToken records the latency to the first reply text.
func (m *Metrics) FirstToken(d time.Duration) {
	m.timeToFirst.Observe(d.Seconds())
}

// StreamDone records the outcome of a streaming reply.
func (m *Metrics) StreamDone(outcome string) {
	m.streamsTotal.WithLabelValues(outcome).Inc()
	m.streams.Add(1)
}

// =============================================================================
// REPORTING
// =============================================================================

// Summary holds plain totals.
type Summary struct {
	Requests       int64
	Failures       int64
	Retries        int64
	Streams        int64
	Chunks         int64
	BytesReceived  int64
	AverageLatency time.Duration
}

// Summary returns current totals.
func (m *Metrics) Summary() Summary {
	s := Summary{
		Requests:      m.requests.Load(),
		Failures:      m.failures.Load(),
		Retries:       m.retries.Load(),
		Streams:       m.streams.Load(),
		Chunks:        m.chunks.Load(),
		BytesReceived: m.received.Load(),
	}
	if s.Requests > 0 {
		s.AverageLatency = time.Duration(m.latencyNs.Load() / s.Requests)
	}
	return s
}

// String formats the summary on one line.
func (s Summary) String() string {
	return fmt.Sprintf("%d requests (%d failed, %d retries) | %d streams, %d chunks, %d bytes | avg %s",
		s.Requests, s.Failures, s.Retries, s.Streams, s.Chunks, s.BytesReceived,
		s.AverageLatency.Round(time.Millisecond))
}

// WriteText writes every metric in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
