// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.json")
	data := []byte(`{"hello":"world"}`)

	require.NoError(t, AtomicWriteFile(path, data, 0600))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "deep", "test.json")

	require.NoError(t, AtomicWriteFile(path, []byte("x"), 0600))

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.json")

	require.NoError(t, AtomicWriteFile(path, []byte("initial"), 0600))
	require.NoError(t, AtomicWriteFile(path, []byte("updated"), 0600))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "updated", string(content))

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"tiny max", "hello", 2, "he"},
		{"zero", "hello", 0, ""},
		{"utf8", "héllo wörld", 8, "héllo..."},
		{"cjk", "日本語のテキスト", 5, "日本..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateRunes(tt.input, tt.max))
		})
	}
}

func TestTruncateWidth(t *testing.T) {
	assert.Equal(t, "hello", TruncateWidth("hello", 10))
	assert.Equal(t, "hell...", TruncateWidth("hello world", 7))
	// Each CJK rune occupies two columns
	assert.Equal(t, "日...", TruncateWidth("日本語テキスト", 6))
	assert.Equal(t, "", TruncateWidth("hello", 0))
}

func TestPadWidth(t *testing.T) {
	assert.Equal(t, "ab   ", PadWidth("ab", 5))
	assert.Equal(t, 6, StringWidth(PadWidth("日本", 6)))
}

func TestStringWidth(t *testing.T) {
	assert.Equal(t, 5, StringWidth("hello"))
	assert.Equal(t, 4, StringWidth("日本"))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "hello", FirstLine("\n\n  hello  \nworld"))
	assert.Equal(t, "", FirstLine("   \n  "))
}

// =============================================================================
// CONTEXT TESTS
// =============================================================================

func TestMergeContexts_AnyParentCancels(t *testing.T) {
	a, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	b, cancelB := context.WithCancel(context.Background())

	merged, cancel := MergeContexts(a, b)
	defer cancel()

	require.NoError(t, merged.Err())
	cancelB()

	select {
	case <-merged.Done():
	case <-time.After(time.Second):
		t.Fatal("merged context not cancelled by second parent")
	}
	assert.ErrorIs(t, context.Cause(merged), context.Canceled)
}

func TestMergeContexts_PropagatesDeadlineCause(t *testing.T) {
	timeout, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelTimeout()

	merged, cancel := MergeContexts(context.Background(), timeout)
	defer cancel()

	<-merged.Done()
	assert.True(t, errors.Is(context.Cause(merged), context.DeadlineExceeded))
}

func TestMergeContexts_AlreadyDoneParent(t *testing.T) {
	done, cancelDone := context.WithCancel(context.Background())
	cancelDone()

	merged, cancel := MergeContexts(context.Background(), done)
	defer cancel()

	assert.Error(t, merged.Err())
}

func TestMergeContexts_NilParents(t *testing.T) {
	merged, cancel := MergeContexts(nil, nil)
	require.NotNil(t, merged)
	require.NoError(t, merged.Err())
	cancel()
	assert.Error(t, merged.Err())
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
