// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pocketchat/internal/apierr"
)

func TestAccumulator_Fold(t *testing.T) {
	stop := "stop"
	var acc Accumulator

	assert.Equal(t, "Hel", acc.Add(&StreamChunk{Choices: []Choice{{Delta: Delta{Role: "assistant", Content: "Hel"}}}}))
	assert.Equal(t, "lo", acc.Add(&StreamChunk{Choices: []Choice{{Delta: Delta{Content: "lo"}}}}))
	assert.Equal(t, "", acc.Add(&StreamChunk{Choices: []Choice{{FinishReason: &stop}}}))

	assert.Equal(t, Result{Content: "Hello", FinishReason: "stop", Chunks: 3}, acc.Result())
}

func TestConsume_CallbackOrderAndCompletion(t *testing.T) {
	body := newPieceReader(contentLine("a"), contentLine("b"), doneEvent)

	var events []string
	var completions, errorsSeen int
	result, err := Consume(context.Background(), Stream(context.Background(), body), Callbacks{
		OnChunk: func(c *StreamChunk) { events = append(events, "chunk:"+ExtractContent(c)) },
		OnContent: func(delta, full string) {
			events = append(events, "content:"+delta+"/"+full)
		},
		OnComplete: func(r Result) {
			completions++
			events = append(events, "complete:"+r.Content)
		},
		OnError: func(error) { errorsSeen++ },
	})

	require.NoError(t, err)
	assert.Equal(t, "ab", result.Content)
	assert.Equal(t, 2, result.Chunks)
	assert.Equal(t, 1, completions)
	assert.Equal(t, 0, errorsSeen)
	assert.Equal(t, []string{
		"chunk:a", "content:a/a",
		"chunk:b", "content:b/ab",
		"complete:ab",
	}, events)
}

func TestConsume_CompletesAtEOFWithoutDone(t *testing.T) {
	body := newPieceReader(contentLine("x"))

	var completions int
	_, err := Consume(context.Background(), Stream(context.Background(), body), Callbacks{
		OnComplete: func(Result) { completions++ },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, completions)
}

func TestConsume_ErrorFiresOnce(t *testing.T) {
	body := newPieceReader(contentLine("partial"))
	body.err = errors.New("unexpected EOF")

	var completions, errorsSeen int
	result, err := Consume(context.Background(), Stream(context.Background(), body), Callbacks{
		OnComplete: func(Result) { completions++ },
		OnError:    func(error) { errorsSeen++ },
	})

	require.Error(t, err)
	assert.Equal(t, apierr.KindStream, apierr.KindOf(err))
	assert.Equal(t, "partial", result.Content)
	assert.Equal(t, 0, completions)
	assert.Equal(t, 1, errorsSeen)
}

func TestConsume_CancellationFiresNoTerminalCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	body := newPieceReader(contentLine("a"), contentLine("b"), contentLine("c"), doneEvent)

	var deltas []string
	var completions, errorsSeen int
	result, err := Consume(ctx, Stream(ctx, body), Callbacks{
		OnContent: func(delta, _ string) {
			deltas = append(deltas, delta)
			cancel()
		},
		OnComplete: func(Result) { completions++ },
		OnError:    func(error) { errorsSeen++ },
	})

	require.Error(t, err)
	assert.Equal(t, apierr.KindCancelled, apierr.KindOf(err))
	assert.Equal(t, []string{"a"}, deltas)
	assert.Equal(t, "a", result.Content)
	assert.Equal(t, 0, completions)
	assert.Equal(t, 0, errorsSeen)
	assert.True(t, body.closed.Load())
}

func TestFragments(t *testing.T) {
	body := newPieceReader(contentLine("one "), "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n", contentLine("two"), doneEvent)

	var sb strings.Builder
	for fragment, err := range Fragments(context.Background(), Stream(context.Background(), body)) {
		require.NoError(t, err)
		sb.WriteString(fragment)
	}
	assert.Equal(t, "one two", sb.String())
}

func TestFragments_CancelledEndsWithError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	body := newPieceReader(contentLine("a"), contentLine("b"), doneEvent)

	var got []string
	var lastErr error
	for fragment, err := range Fragments(ctx, Stream(ctx, body)) {
		if err != nil {
			lastErr = err
			break
		}
		got = append(got, fragment)
		cancel()
	}

	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, apierr.KindCancelled, apierr.KindOf(lastErr))
}
