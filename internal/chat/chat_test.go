// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/client"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/sse"
	"github.com/jeranaias/pocketchat/internal/validate"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fakeTransport struct {
	calls   int
	lastReq *CompletionRequest
	reply   string
	err     error
	stream  string
}

func (f *fakeTransport) PostJSON(_ context.Context, _ string, body, out any, _ ...client.RequestOption) error {
	f.calls++
	f.lastReq = body.(*CompletionRequest)
	if f.err != nil {
		return f.err
	}
	resp := out.(*CompletionResponse)
	resp.Choices = []CompletionChoice{{Message: WireMessage{Role: "assistant", Content: f.reply}}}
	return nil
}

func (f *fakeTransport) PostStream(_ context.Context, _ string, body any, _ ...client.RequestOption) (io.ReadCloser, error) {
	f.calls++
	f.lastReq = body.(*CompletionRequest)
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.stream)), nil
}

func history(texts ...string) []*model.Message {
	msgs := make([]*model.Message, 0, len(texts))
	for _, text := range texts {
		msgs = append(msgs, model.NewUserMessage(text))
	}
	return msgs
}

func sseLine(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]any{"content": content}}},
	})
	return fmt.Sprintf("data: %s\n\n", b)
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// VALIDATION
// =============================================================================

func TestSendMessage_EmptyModelMakesNoCall(t *testing.T) {
	ft := &fakeTransport{}
	svc := NewService(ft)

	_, err := svc.SendMessage(context.Background(), history("hello"), "", Options{})

	require.Error(t, err)
	assert.True(t, apierr.IsKind(err, apierr.KindValidation))
	apiErr, _ := apierr.As(err)
	assert.Equal(t, "model", apiErr.Field)
	assert.Equal(t, 0, ft.calls)
}

func TestSendMessage_ValidationBeforeTransport(t *testing.T) {
	tests := []struct {
		name     string
		messages []*model.Message
		opts     Options
		field    string
	}{
		{"no messages", nil, Options{}, "messages"},
		{"blank content", history("   "), Options{}, "content"},
		{"too long", history(strings.Repeat("a", 20)), Options{}, "content"},
		{"temperature", history("hi"), Options{Temperature: ptr(2.5)}, "temperature"},
		{"top_p", history("hi"), Options{TopP: ptr(-0.1)}, "top_p"},
		{"max_tokens", history("hi"), Options{MaxTokens: ptr(0)}, "max_tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{}
			svc := NewService(ft, WithMaxMessageLength(10))

			_, err := svc.SendMessage(context.Background(), tt.messages, "m", tt.opts)

			apiErr, ok := apierr.As(err)
			require.True(t, ok)
			assert.Equal(t, apierr.KindValidation, apiErr.Kind)
			assert.Equal(t, tt.field, apiErr.Field)
			assert.Equal(t, 0, ft.calls)
		})
	}
}

// =============================================================================
// SINGLE-SHOT
// =============================================================================

func TestSendMessage_AppliesDefaults(t *testing.T) {
	ft := &fakeTransport{reply: "pong"}
	svc := NewService(ft, WithDefaults(validate.GenerationParams{
		Temperature: ptr(0.7),
		MaxTokens:   ptr(256),
	}))

	reply, err := svc.SendMessage(context.Background(), history("ping"), "m", Options{Temperature: ptr(0.1)})

	require.NoError(t, err)
	assert.Equal(t, "pong", reply)
	require.NotNil(t, ft.lastReq)
	assert.False(t, ft.lastReq.Stream)
	assert.Equal(t, 0.1, *ft.lastReq.Temperature)
	assert.Equal(t, 256, *ft.lastReq.MaxTokens)
	assert.Nil(t, ft.lastReq.TopP)
}

func TestSendMessage_WrapsForeignErrors(t *testing.T) {
	ft := &fakeTransport{err: errors.New("boom")}
	svc := NewService(ft)

	_, err := svc.SendMessage(context.Background(), history("hi"), "m", Options{})

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindUnknown, apiErr.Kind)
	assert.Equal(t, "Failed to send message", apiErr.Message)
}

func TestSendMessage_KeepsTaxonomyErrors(t *testing.T) {
	ft := &fakeTransport{err: apierr.Server(503, "")}
	svc := NewService(ft)

	_, err := svc.SendMessage(context.Background(), history("hi"), "m", Options{})

	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindServer, apiErr.Kind)
	assert.Equal(t, 503, apiErr.StatusCode)
}

func TestSendMessage_WireFormat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CompletionsPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	defer c.Close()

	msgs := []*model.Message{model.NewSystemMessage("be brief"), model.NewUserMessage("hi")}
	reply, err := NewService(c).SendMessage(context.Background(), msgs, "llama3", Options{})

	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)
	assert.Equal(t, "llama3", got["model"])
	assert.Equal(t, false, got["stream"])
	wire := got["messages"].([]any)
	require.Len(t, wire, 2)
	first := wire[0].(map[string]any)
	assert.Len(t, first, 2)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "be brief", first["content"])
}

func TestSendMessage_NoChoicesIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	c, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	defer c.Close()

	_, err = NewService(c).SendMessage(context.Background(), history("hi"), "m", Options{})
	assert.True(t, apierr.IsKind(err, apierr.KindParse))
}

// =============================================================================
// STREAMING
// =============================================================================

func TestSendMessageStream_Callbacks(t *testing.T) {
	ft := &fakeTransport{stream: sseLine("Hel") + sseLine("lo") + "data: [DONE]\n\n"}
	svc := NewService(ft)

	var deltas []string
	var completed *sse.Result
	result, err := svc.SendMessageStream(context.Background(), history("hi"), "m", StreamOptions{
		Callbacks: sse.Callbacks{
			OnContent:  func(delta, _ string) { deltas = append(deltas, delta) },
			OnComplete: func(r sse.Result) { completed = &r },
			OnError:    func(err error) { t.Fatalf("unexpected error: %v", err) },
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello", result.Content)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.NotNil(t, completed)
	assert.Equal(t, 2, completed.Chunks)
	assert.True(t, ft.lastReq.Stream)
}

func TestSendMessageStream_ValidationReportsOnError(t *testing.T) {
	ft := &fakeTransport{}
	svc := NewService(ft)

	var reported error
	_, err := svc.SendMessageStream(context.Background(), history("hi"), "", StreamOptions{
		Callbacks: sse.Callbacks{
			OnError:    func(err error) { reported = err },
			OnComplete: func(sse.Result) { t.Fatal("OnComplete must not fire") },
		},
	})

	require.Error(t, err)
	assert.Equal(t, err, reported)
	assert.Equal(t, 0, ft.calls)
}

func TestSendMessageStream_CancelStopsCallbacks(t *testing.T) {
	first := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseLine("one"))
		w.(http.Flusher).Flush()
		close(first)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-first
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	completed := false
	result, err := NewService(c).SendMessageStream(ctx, history("hi"), "m", StreamOptions{
		Callbacks: sse.Callbacks{
			OnComplete: func(sse.Result) { completed = true },
		},
	})

	assert.True(t, apierr.IsKind(err, apierr.KindCancelled))
	assert.False(t, completed)
	assert.Equal(t, "one", result.Content)
}

// stallingServer sends one chunk and then holds the stream open.
func stallingServer(t *testing.T, first chan<- struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseLine("one"))
		w.(http.Flusher).Flush()
		if first != nil {
			close(first)
		}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSendMessageStream_StreamTimeoutIsTimeout(t *testing.T) {
	srv := stallingServer(t, nil)

	c, err := client.New(client.Config{BaseURL: srv.URL, StreamTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()

	var reported []error
	result, err := NewService(c).SendMessageStream(context.Background(), history("hi"), "m", StreamOptions{
		Callbacks: sse.Callbacks{
			OnError: func(err error) { reported = append(reported, err) },
		},
	})

	require.Error(t, err)
	assert.Equal(t, apierr.KindTimeout, apierr.KindOf(err), "got %v", err)
	assert.Equal(t, "one", result.Content)
	require.Len(t, reported, 1)
	assert.Equal(t, apierr.KindTimeout, apierr.KindOf(reported[0]))
}

func TestSendMessageStream_CallerDeadlineIsTimeout(t *testing.T) {
	srv := stallingServer(t, nil)

	c, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	result, err := NewService(c).SendMessageStream(ctx, history("hi"), "m", StreamOptions{})
	assert.Equal(t, apierr.KindTimeout, apierr.KindOf(err), "got %v", err)
	assert.Equal(t, "one", result.Content)
}

func TestSendMessageStream_ClientCloseIsCancelled(t *testing.T) {
	first := make(chan struct{})
	srv := stallingServer(t, first)

	c, err := client.New(client.Config{BaseURL: srv.URL})
	require.NoError(t, err)
	go func() {
		<-first
		time.Sleep(20 * time.Millisecond)
		c.Close()
	}()

	errorsSeen := 0
	_, err = NewService(c).SendMessageStream(context.Background(), history("hi"), "m", StreamOptions{
		Callbacks: sse.Callbacks{
			OnError: func(error) { errorsSeen++ },
		},
	})
	assert.Equal(t, apierr.KindCancelled, apierr.KindOf(err), "got %v", err)
	assert.Zero(t, errorsSeen)
}

func TestStreamMessage_Fragments(t *testing.T) {
	ft := &fakeTransport{stream: sseLine("a") + "data: {broken\n\n" + sseLine("b") + "data: [DONE]\n\n"}
	svc := NewService(ft)

	var parts []string
	for text, err := range svc.StreamMessage(context.Background(), history("hi"), "m", Options{}) {
		require.NoError(t, err)
		parts = append(parts, text)
	}
	assert.Equal(t, []string{"a", "b"}, parts)
}

func TestStreamMessage_OpenErrorYieldedOnce(t *testing.T) {
	ft := &fakeTransport{err: apierr.Network("connection refused", nil)}
	svc := NewService(ft)

	var errs []error
	for text, err := range svc.StreamMessage(context.Background(), history("hi"), "m", Options{}) {
		assert.Empty(t, text)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.True(t, apierr.IsKind(errs[0], apierr.KindNetwork))
}

func TestStreamMessage_Lazy(t *testing.T) {
	ft := &fakeTransport{stream: "data: [DONE]\n\n"}
	svc := NewService(ft)

	seq := svc.StreamMessage(context.Background(), history("hi"), "m", Options{})
	assert.Equal(t, 0, ft.calls)
	for range seq {
	}
	assert.Equal(t, 1, ft.calls)
}
