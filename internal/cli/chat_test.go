// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pocketchat/internal/config"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/storage"
)

type replHarness struct {
	r      *repl
	out    *bytes.Buffer
	errOut *bytes.Buffer
	srv    *fakeServer
}

func newHarness(t *testing.T) *replHarness {
	t.Helper()
	isolate(t)
	srv := newFakeServer(t)

	var out, errOut bytes.Buffer
	a, err := NewApp(Args{URL: srv.URL, Model: "alpha"}, &out, &errOut)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	repo, err := a.Repository()
	require.NoError(t, err)
	return &replHarness{r: newREPL(a, repo, "alpha"), out: &out, errOut: &errOut, srv: srv}
}

func (h *replHarness) handle(t *testing.T, line string) bool {
	t.Helper()
	quit, err := h.r.handle(context.Background(), line)
	require.NoError(t, err, "handle(%q)", line)
	return quit
}

func TestREPL_SendStreamsAndSaves(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.handle(t, "hello there"))
	assert.Contains(t, h.out.String(), "assistant> Hello there friend\n")

	conv := h.r.mgr.Conversation()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Hello there friend", conv.Messages[1].Content)

	metas, err := h.r.repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "hello there", metas[0].Title)
}

func TestREPL_Retry(t *testing.T) {
	h := newHarness(t)

	h.handle(t, "hello")
	h.handle(t, "/retry")
	assert.EqualValues(t, 2, h.srv.completions())
	assert.Len(t, h.r.mgr.Conversation().Messages, 2)
}

func TestREPL_RetryWithoutMessage(t *testing.T) {
	h := newHarness(t)
	_, err := h.r.handle(context.Background(), "/retry")
	assert.ErrorIs(t, err, model.ErrNoUserMessage)
}

func TestREPL_ValidationShownOnce(t *testing.T) {
	h := newHarness(t)
	// The notifier reports the error; handle does not return it again
	quit, err := h.r.handle(context.Background(), "   ")
	assert.False(t, quit)
	assert.NoError(t, err)
	assert.Contains(t, h.errOut.String(), "[Error]")
	assert.Zero(t, h.srv.completions())
}

func TestREPL_ModelCommands(t *testing.T) {
	h := newHarness(t)

	h.handle(t, "/model")
	assert.Contains(t, h.out.String(), "alpha")

	h.handle(t, "/model zeta")
	assert.Equal(t, "zeta", h.r.mgr.Model())

	store, err := h.r.app.Store()
	require.NoError(t, err)
	settings, err := storage.LoadSettings(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "zeta", settings.Model)

	_, err = h.r.handle(context.Background(), "/model bad id")
	assert.Error(t, err)
	assert.Equal(t, "zeta", h.r.mgr.Model())

	h.out.Reset()
	h.handle(t, "/models")
	assert.Contains(t, h.out.String(), "* zeta")
}

func TestREPL_TitleSystemHistory(t *testing.T) {
	h := newHarness(t)

	h.handle(t, "/system Answer in one word.")
	h.handle(t, "what is go")
	h.handle(t, "/title Go basics")

	conv := h.r.mgr.Conversation()
	assert.Equal(t, "Go basics", conv.Title)
	assert.Equal(t, "Answer in one word.", conv.SystemPrompt())

	h.out.Reset()
	h.handle(t, "/history")
	out := h.out.String()
	assert.Contains(t, out, "Go basics")
	assert.Contains(t, out, "system> Answer in one word.")
	assert.Contains(t, out, "you> what is go")
}

func TestREPL_NewAndLoad(t *testing.T) {
	h := newHarness(t)

	h.handle(t, "first chat")
	firstID := h.r.mgr.Conversation().ID

	h.handle(t, "/new")
	assert.True(t, h.r.mgr.Conversation().IsEmpty())
	h.handle(t, "second chat")

	h.out.Reset()
	h.handle(t, "/chats")
	assert.Contains(t, h.out.String(), "first chat")
	assert.Contains(t, h.out.String(), "second chat")

	h.handle(t, "/load "+firstID)
	assert.Equal(t, firstID, h.r.mgr.Conversation().ID)

	_, err := h.r.handle(context.Background(), "/load nothing-like-this")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestREPL_Export(t *testing.T) {
	h := newHarness(t)

	_, err := h.r.handle(context.Background(), "/export")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr, "empty chat")

	h.handle(t, "hello")
	dest := filepath.Join(t.TempDir(), "chat.html")
	h.handle(t, "/export "+dest)
	assert.Contains(t, h.out.String(), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Hello there friend")
}

func TestREPL_NewKeepsConfiguredSystemPrompt(t *testing.T) {
	h := newHarness(t)
	h.r.app.Config.Generation.SystemPrompt = "Be terse."

	h.handle(t, "/new")
	assert.Equal(t, "Be terse.", h.r.mgr.Conversation().SystemPrompt())
}

func TestREPL_NameAndStats(t *testing.T) {
	h := newHarness(t)

	h.handle(t, "/name Sam")
	store, err := h.r.app.Store()
	require.NoError(t, err)
	profile, err := storage.LoadUserProfile(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "Sam", profile.Name)

	h.handle(t, "hi")
	h.out.Reset()
	h.handle(t, "/stats")
	assert.Contains(t, h.out.String(), "1 streams")

	h.out.Reset()
	h.handle(t, "/stats full")
	assert.Contains(t, h.out.String(), "# TYPE")
}

func TestREPL_QuitAndUnknown(t *testing.T) {
	h := newHarness(t)

	for _, line := range []string{"/quit", "/exit", "exit", "QUIT"} {
		assert.True(t, h.handle(t, line), line)
	}

	_, err := h.r.handle(context.Background(), "/frobnicate")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestREPL_ReloadAppliesChanges(t *testing.T) {
	h := newHarness(t)
	other := newFakeServer(t)

	cfg := h.r.app.Config.Clone()
	cfg.Server.URL = other.URL
	cfg.Generation.DefaultModel = "zeta"
	h.r.reload(cfg, nil)

	assert.Equal(t, other.URL, h.r.app.Client.BaseURL())
	assert.Equal(t, "zeta", h.r.mgr.Model())

	h.handle(t, "hello")
	assert.EqualValues(t, 1, other.completions())
	assert.Zero(t, h.srv.completions())
}

func TestREPL_ReloadErrorKeepsSettings(t *testing.T) {
	h := newHarness(t)
	before := h.r.app.Client.BaseURL()

	h.r.reload(nil, config.ValidateErrors{{Field: "server.url", Message: "bad"}})
	assert.Equal(t, before, h.r.app.Client.BaseURL())
	assert.Contains(t, h.errOut.String(), "config not reloaded")
}
