// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pocketchat/internal/client"
)

func modelsHandler(hits *atomic.Int32, failEvery int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if failEvery > 0 && int(n)%failEvery == 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"object":"list","data":[{"id":"a"},{"id":"b"},{"id":"c"}]}`)
	}
}

func newClient(t *testing.T, url string) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{BaseURL: url})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// unreachableURL returns a URL on a port with no listener.
func unreachableURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr
}

func TestCheck_Healthy(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(modelsHandler(&hits, 0))
	defer srv.Close()

	st := NewChecker(newClient(t, srv.URL)).Check(context.Background())

	assert.True(t, st.IsHealthy)
	assert.Equal(t, 3, st.ModelsAvailable)
	assert.Empty(t, st.Error)
	assert.Positive(t, st.Latency)
}

func TestCheck_Unreachable(t *testing.T) {
	st := NewChecker(newClient(t, unreachableURL(t))).Check(context.Background())

	assert.False(t, st.IsHealthy)
	assert.NotEmpty(t, st.Error)
}

func TestCheck_NoRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(modelsHandler(&hits, 1))
	defer srv.Close()

	st := NewChecker(newClient(t, srv.URL)).Check(context.Background())

	assert.False(t, st.IsHealthy)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCheck_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	st := NewChecker(newClient(t, srv.URL), WithTimeout(50*time.Millisecond)).Check(context.Background())

	assert.False(t, st.IsHealthy)
	assert.NotEmpty(t, st.Error)
	assert.Less(t, st.Latency, 2*time.Second)
}

func TestCheckMultiple(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(modelsHandler(&hits, 2)) // every second request fails
	defer srv.Close()

	sum := NewChecker(newClient(t, srv.URL)).CheckMultiple(context.Background(), 4, time.Millisecond)

	require.Len(t, sum.Samples, 4)
	assert.Equal(t, 0.5, sum.SuccessRate)
	assert.True(t, sum.IsHealthy)
	assert.Positive(t, sum.AverageLatency)
}

func TestCheckMultiple_Threshold(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(modelsHandler(&hits, 2))
	defer srv.Close()

	sum := NewChecker(newClient(t, srv.URL), WithThreshold(0.75)).
		CheckMultiple(context.Background(), 4, time.Millisecond)

	assert.False(t, sum.IsHealthy)
}

func TestCheckMultiple_AllFailing(t *testing.T) {
	sum := NewChecker(newClient(t, unreachableURL(t))).CheckMultiple(context.Background(), 2, time.Millisecond)

	assert.Zero(t, sum.SuccessRate)
	assert.Zero(t, sum.AverageLatency)
	assert.False(t, sum.IsHealthy)
}

func TestCheckMultiple_Cancelled(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(modelsHandler(&hits, 0))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	sum := NewChecker(newClient(t, srv.URL)).CheckMultiple(ctx, 10, time.Second)

	assert.Len(t, sum.Samples, 1)
}

func TestProbe_OrderPreserved(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(modelsHandler(&hits, 0))
	defer srv.Close()

	urls := []string{unreachableURL(t), srv.URL, "not a url"}
	results := Probe(context.Background(), urls, client.DefaultConfig())

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
	}
	assert.False(t, results[0].Status.IsHealthy)
	assert.True(t, results[1].Status.IsHealthy)
	assert.False(t, results[2].Status.IsHealthy)
	assert.NotEmpty(t, results[2].Status.Error)
}
