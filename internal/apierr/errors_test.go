// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"canceled", context.Canceled, KindCancelled},
		{"wrapped canceled", fmt.Errorf("do: %w", context.Canceled), KindCancelled},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"timeout text", errors.New("i/o timeout while reading"), KindTimeout},
		{"network text", errors.New("network is unreachable"), KindNetwork},
		{"fetch text", errors.New("Failed to fetch"), KindNetwork},
		{"refused", errors.New("dial tcp: connection refused"), KindNetwork},
		{"op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")}, KindNetwork},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("eof")}, KindNetwork},
		{"url canceled", &url.Error{Op: "Get", URL: "http://x", Err: context.Canceled}, KindCancelled},
		{"other", errors.New("weird"), KindUnknown},
		{"already typed", Server(404, "nope"), KindServer},
		{"wrapped typed", fmt.Errorf("outer: %w", Validation("model", "required")), KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
		})
	}

	assert.Nil(t, Classify(nil))
}

func TestClassify_PreservesCause(t *testing.T) {
	cause := errors.New("socket closed by peer network")
	got := Classify(cause)
	assert.ErrorIs(t, got, cause)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", Network("down", nil), true},
		{"timeout", Timeout("slow", nil), true},
		{"500", Server(500, ""), true},
		{"503", Server(503, ""), true},
		{"599", Server(599, ""), true},
		{"400", Server(400, ""), false},
		{"404", Server(404, ""), false},
		{"429", Server(429, ""), false},
		{"cancelled", Cancelled(nil), false},
		{"validation", Validation("f", "bad"), false},
		{"stream", Stream("broken", nil), false},
		{"parse", Parse("bad json", nil), false},
		{"model", ModelNotFound("x"), false},
		{"unknown", Unknown("?", nil), false},
		{"raw deadline", context.DeadlineExceeded, true},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, KindCancelled, FromContext(cancelled).Kind)

	expired, cancelExpired := context.WithTimeout(context.Background(), -time.Second)
	defer cancelExpired()
	assert.Equal(t, KindTimeout, FromContext(expired).Kind)

	cancelledFirst, cancelFirst := context.WithTimeout(context.Background(), time.Hour)
	cancelFirst()
	assert.Equal(t, KindCancelled, FromContext(cancelledFirst).Kind)
}

func TestServer_DefaultMessage(t *testing.T) {
	err := Server(502, "")
	assert.Equal(t, "Server error: 502", err.Error())
	assert.Equal(t, 502, err.StatusCode)
}

func TestModelNotFound_CarriesID(t *testing.T) {
	err := ModelNotFound("llama3")
	assert.Equal(t, "llama3", err.ModelID)
	assert.True(t, IsKind(err, KindModelNotFound))
}

func TestErrorIs_MatchesKind(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Server(503, "busy"))
	assert.ErrorIs(t, err, &Error{Kind: KindServer})
	assert.ErrorIs(t, err, &Error{Kind: KindServer, StatusCode: 503})
	assert.NotErrorIs(t, err, &Error{Kind: KindServer, StatusCode: 500})
	assert.NotErrorIs(t, err, &Error{Kind: KindTimeout})
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Contains(t, UserMessage(ModelNotFound("x")), `"x"`)
	assert.Equal(t, "Model is required", UserMessage(Validation("model", "Model is required")))
	assert.Contains(t, UserMessage(Server(503, "overloaded")), "503")
	assert.NotEmpty(t, UserMessage(errors.New("anything")))
}
