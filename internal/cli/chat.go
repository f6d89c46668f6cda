// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// Usage:
//   pocketchat                      Start a new chat
//   pocketchat chat --resume        Continue the last active chat
//   pocketchat chat --chat 2        Continue chat #2 from `pocketchat chats`
//   pocketchat chat --model llama3
//
// Ctrl+C during a reply cancels it. Ctrl+C or Ctrl+D at the prompt exits.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/client"
	"github.com/jeranaias/pocketchat/internal/config"
	"github.com/jeranaias/pocketchat/internal/export"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/session"
	"github.com/jeranaias/pocketchat/internal/storage"
)

const chatHelp = `Commands:
  /help               Show this help
  /new                Start a new chat
  /model [ID]         Show or switch the model
  /models             List models on the server
  /title [TITLE]      Show or rename the chat
  /system [PROMPT]    Show or set the system prompt
  /retry              Regenerate the last reply
  /history            Show this chat
  /export [PATH]      Save this chat (.md, .json or .html)
  /chats              List saved chats
  /load REF           Open a saved chat by number or id
  /name NAME          Set the name used in the greeting
  /stats [full]       Show request statistics
  /quit               Exit
`

// repl is one interactive chat session.
type repl struct {
	app  *App
	mgr  *session.Manager
	repo *storage.ChatRepository
	out  io.Writer

	// markdown collects a reply and renders it on completion
	markdown bool
	// streamed is true while raw reply text is on the current line
	streamed bool

	// baseline is the config last applied by a reload
	baseline *config.Config
}

func newREPL(a *App, repo *storage.ChatRepository, modelID string) *repl {
	r := &repl{
		app:      a,
		repo:     repo,
		out:      a.Out,
		markdown: a.Markdown(),
		baseline: a.Config.Clone(),
	}
	r.mgr = session.NewManager(a.Chat, modelID,
		session.WithRepository(repo),
		session.WithNotifier(r.onEvent),
		session.WithObserver(a.Metrics),
		session.WithLogger(a.Logger),
		session.WithMaxMessageLength(a.Config.Generation.MaxMessageLength),
	)
	r.applySystemPrompt()
	return r
}

func runChat(ctx context.Context, a *App, raw []string) error {
	p := NewArgParser(raw, "resume")

	repo, err := a.Repository()
	if err != nil {
		return err
	}

	if id := p.Flag("model", "m"); id != "" {
		a.Config.Generation.DefaultModel = id
	}
	modelID, err := a.ResolveModel(ctx)
	if err != nil {
		// The REPL still starts; sends report the missing model.
		fmt.Fprintf(a.Err, "%s %s\n", WarningStyle.Render("[Warning]"), Describe(err))
	}

	r := newREPL(a, repo, modelID)
	if err := r.open(ctx, p); err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if a.ConfigPath != "" {
		go func() {
			if err := config.Watch(watchCtx, a.ConfigPath, r.reload); err != nil {
				a.Logger.Debug("config watch unavailable", "path", a.ConfigPath, "error", err)
			}
		}()
	}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	historyFile := chatHistoryPath()
	loadLineHistory(line, historyFile)
	defer func() {
		saveLineHistory(line, historyFile)
		line.Close()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigs)
		close(done)
	}()
	go func() {
		for {
			select {
			case <-sigs:
				if r.mgr.Cancel() {
					fmt.Fprintln(a.Err, "\n"+WarningStyle.Render("[Cancelled]"))
				}
			case <-done:
				return
			}
		}
	}()

	r.printWelcome(ctx)

	for {
		input, err := line.Prompt(r.prompt())
		if err != nil {
			// Ctrl+C, Ctrl+D or a closed terminal
			fmt.Fprintln(r.out)
			r.printExitSummary()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := r.handle(ctx, input)
		if err != nil {
			fmt.Fprintf(a.Err, "%s %s\n", ErrorStyle.Render("[Error]"), Describe(err))
		}
		if quit {
			r.printExitSummary()
			return nil
		}
	}
}

// open selects the starting conversation from --chat or --resume.
func (r *repl) open(ctx context.Context, p *ArgParser) error {
	if ref := p.Flag("chat", "c"); ref != "" {
		conv, err := findChat(ctx, r.repo, ref)
		if err != nil {
			return err
		}
		return r.mgr.Load(ctx, conv.ID)
	}
	if p.BoolFlag("resume") {
		id, err := r.repo.ActiveID(ctx)
		if err != nil {
			return err
		}
		if id == "" {
			fmt.Fprintln(r.app.Err, DimStyle.Render("No chat to resume; starting a new one."))
			return nil
		}
		if err := r.mgr.Load(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrNotFound("chat", id)
			}
			return err
		}
	}
	return nil
}

func (r *repl) prompt() string {
	return userStyle.Render("you> ")
}

// =============================================================================
// INPUT HANDLING
// =============================================================================

// handle processes one line of input. It reports whether the session ends.
func (r *repl) handle(ctx context.Context, input string) (bool, error) {
	if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
		return true, nil
	}
	if !strings.HasPrefix(input, "/") {
		return false, r.sendResult(r.mgr.Send(ctx, input))
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/h", "/?":
		fmt.Fprint(r.out, chatHelp)

	case "/new", "/clear":
		if err := r.mgr.NewConversation(ctx); err != nil {
			return false, err
		}
		r.applySystemPrompt()
		fmt.Fprintln(r.out, DimStyle.Render("Started a new chat."))

	case "/model", "/m":
		if arg == "" {
			fmt.Fprintf(r.out, "Model: %s\n", HighlightStyle.Render(orNone(r.mgr.Model())))
			return false, nil
		}
		if err := r.mgr.SetModel(arg); err != nil {
			return false, err
		}
		r.app.RememberModel(ctx, arg)
		fmt.Fprintf(r.out, "Switched to %s\n", HighlightStyle.Render(arg))

	case "/models":
		models, err := r.app.Models.GetModels(ctx)
		if err != nil {
			return false, err
		}
		model.SortModels(models)
		writeModelList(r.app, models, r.mgr.Model())

	case "/title", "/rename":
		if arg == "" {
			fmt.Fprintln(r.out, r.mgr.Conversation().DisplayTitle())
			return false, nil
		}
		return false, r.mgr.Rename(ctx, arg)

	case "/system":
		if arg == "" {
			fmt.Fprintln(r.out, orNone(r.mgr.Conversation().SystemPrompt()))
			return false, nil
		}
		if err := r.mgr.SetSystemPrompt(arg); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, DimStyle.Render("System prompt set."))

	case "/retry", "/regenerate":
		return false, r.sendResult(r.mgr.Regenerate(ctx))

	case "/history":
		r.printHistory()

	case "/export":
		conv := r.mgr.Conversation()
		if conv.IsEmpty() {
			return false, NewValidationError("chat", "", "nothing to export yet")
		}
		exporter, err := export.New(export.FormatFromPath(arg), export.DefaultOptions())
		if err != nil {
			return false, err
		}
		path, err := export.WriteFile(conv, exporter, ".", arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s wrote %s\n", SuccessStyle.Render("[OK]"), path)

	case "/chats":
		metas, err := r.repo.List(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprint(r.out, storage.FormatChatList(metas))
		if len(metas) == 0 {
			fmt.Fprintln(r.out)
		}

	case "/load":
		if arg == "" {
			return false, ErrMissingArgument("chat", "/load 1")
		}
		conv, err := findChat(ctx, r.repo, arg)
		if err != nil {
			return false, err
		}
		if err := r.mgr.Load(ctx, conv.ID); err != nil {
			return false, err
		}
		r.printHistory()

	case "/name":
		if arg == "" {
			return false, ErrMissingArgument("name", "/name Sam")
		}
		store, err := r.app.Store()
		if err != nil {
			return false, err
		}
		if err := storage.SaveUserProfile(ctx, store, storage.UserProfile{Name: arg}); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Nice to meet you, %s.\n", arg)

	case "/stats":
		if strings.EqualFold(arg, "full") {
			return false, r.app.Metrics.WriteText(r.out)
		}
		fmt.Fprintln(r.out, r.app.Metrics.Summary())

	default:
		return false, NewValidationErrorWithExample("command", cmd, "unknown command", "/help")
	}
	return false, nil
}

// sendResult filters errors the notifier has already shown.
func (r *repl) sendResult(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apierr.As(err); ok || apierr.IsKind(err, apierr.KindCancelled) {
		r.finishLine()
		if r.markdown && apierr.IsKind(err, apierr.KindCancelled) {
			// Nothing was printed while collecting; show what arrived
			if last := r.mgr.Conversation().LastMessage(); last != nil && last.Role == model.RoleAssistant {
				fmt.Fprintln(r.out, last.Content)
			}
		}
		return nil
	}
	return err
}

// applySystemPrompt seeds an empty conversation with the configured prompt.
func (r *repl) applySystemPrompt() {
	prompt := r.app.Config.Generation.SystemPrompt
	if prompt == "" || !r.mgr.Conversation().IsEmpty() {
		return
	}
	if err := r.mgr.SetSystemPrompt(prompt); err != nil {
		r.app.Logger.Warn("failed to set system prompt", "error", err)
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

// onEvent prints session events. It runs on the sending goroutine.
func (r *repl) onEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventToken:
		if r.markdown {
			return
		}
		if !r.streamed {
			fmt.Fprint(r.out, assistantStyle.Render("assistant> "))
			r.streamed = true
		}
		fmt.Fprint(r.out, ev.Delta)

	case session.EventComplete:
		if r.markdown && ev.Message != nil {
			fmt.Fprint(r.out, r.app.RenderMarkdown(ev.Message.Content))
			return
		}
		r.finishLine()
		if ev.Message != nil && ev.Message.FinishReason == "length" {
			fmt.Fprintln(r.out, DimStyle.Render("[reply cut off at the token limit]"))
		}

	case session.EventError:
		r.finishLine()
		if ev.Inline && ev.Field != "" {
			fmt.Fprintf(r.app.Err, "%s %s: %s\n", ErrorStyle.Render("[Error]"), ev.Field, ev.Text)
			return
		}
		fmt.Fprintf(r.app.Err, "%s %s\n", ErrorStyle.Render("[Error]"), ev.Text)
	}
}

func (r *repl) finishLine() {
	if r.streamed {
		fmt.Fprintln(r.out)
		r.streamed = false
	}
}

func (r *repl) printWelcome(ctx context.Context) {
	conv := r.mgr.Conversation()
	fmt.Fprintln(r.out, TitleStyle.Render("pocketchat "+Version))
	fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Server"), ValueStyle.Render(r.app.Client.BaseURL()))
	fmt.Fprintf(r.out, "%s %s\n", RenderLabel("Model"), ValueStyle.Render(orNone(r.mgr.Model())))
	if !conv.IsEmpty() {
		fmt.Fprintf(r.out, "%s %s (%d messages)\n", RenderLabel("Chat"), ValueStyle.Render(conv.DisplayTitle()), conv.MessageCount())
	}

	if store, err := r.app.Store(); err == nil {
		if profile, err := storage.LoadUserProfile(ctx, store); err == nil && profile.Name != "" {
			fmt.Fprintf(r.out, "Welcome back, %s.\n", profile.Name)
		}
	}
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands, /quit to exit."))
	fmt.Fprintln(r.out)
}

func (r *repl) printHistory() {
	conv := r.mgr.Conversation()
	fmt.Fprintln(r.out, TitleStyle.Render(conv.DisplayTitle()))
	if conv.IsEmpty() {
		fmt.Fprintln(r.out, DimStyle.Render("(empty)"))
		return
	}
	for _, msg := range conv.Messages {
		style := userStyle
		switch msg.Role {
		case model.RoleAssistant:
			style = assistantStyle
		case model.RoleSystem:
			style = systemStyle
		}
		fmt.Fprintf(r.out, "%s %s\n", style.Render(strings.ToLower(msg.Role.DisplayName())+">"), r.app.Wrap(msg.DisplayContent()))
	}
}

func (r *repl) printExitSummary() {
	s := r.app.Metrics.Summary()
	if s.Requests == 0 && s.Streams == 0 {
		return
	}
	fmt.Fprintln(r.out, DimStyle.Render(s.String()))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

// reload applies settings that changed in the config file. Values set by
// flags stay in effect until the file changes them.
func (r *repl) reload(cfg *config.Config, err error) {
	logger := r.app.Logger
	if err != nil {
		logger.Warn("config reload failed", "path", r.app.ConfigPath, "error", err)
		fmt.Fprintf(r.app.Err, "\n%s config not reloaded: %s\n", WarningStyle.Render("[Warning]"), Describe(err))
		return
	}

	old := r.baseline
	c := r.app.Client
	if cfg.Server.URL != old.Server.URL {
		if err := c.SetBaseURL(cfg.Server.URL); err != nil {
			logger.Warn("config reload: bad server url", "url", cfg.Server.URL, "error", err)
		}
	}
	if cfg.Server.Timeout != old.Server.Timeout {
		c.SetTimeout(cfg.Server.Timeout.Duration)
	}
	if cfg.Server.StreamTimeout != old.Server.StreamTimeout {
		c.SetStreamTimeout(cfg.Server.StreamTimeout.Duration)
	}
	for k, v := range cfg.Server.Headers {
		if old.Server.Headers[k] != v {
			c.SetHeader(k, v)
		}
	}
	for k := range old.Server.Headers {
		if _, ok := cfg.Server.Headers[k]; !ok {
			c.SetHeader(k, "")
		}
	}
	if cfg.Retry != old.Retry {
		c.SetRetryPolicy(client.RetryPolicy{
			MaxRetries:        cfg.Retry.MaxRetries,
			InitialDelay:      cfg.Retry.InitialDelay.Duration,
			MaxDelay:          cfg.Retry.MaxDelay.Duration,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		})
	}
	if id := cfg.Generation.DefaultModel; id != "" && id != old.Generation.DefaultModel {
		if err := r.mgr.SetModel(id); err != nil {
			logger.Warn("config reload: bad model", "model", id, "error", err)
		}
	}

	r.baseline = cfg
	logger.Info("config reloaded", "path", r.app.ConfigPath, "server", c.BaseURL(), "model", r.mgr.Model())
}

// =============================================================================
// LINE HISTORY
// =============================================================================

func chatHistoryPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "chat_history")
}

func loadLineHistory(line *liner.State, path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.ReadHistory(f)
}

// saveLineHistory writes the input history owner-readable only.
func saveLineHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}
