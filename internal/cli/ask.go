// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Examples:
//   pocketchat ask "What is a goroutine?"
//   pocketchat ask --no-stream --model llama3 "Summarize RFC 2119"
//   git diff | pocketchat ask --system "Review this diff"

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jeranaias/pocketchat/internal/chat"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/validate"
)

// maxStdinPrompt bounds a prompt read from a pipe.
const maxStdinPrompt = 1 << 20

// stdin is replaced in tests.
var stdin io.Reader = os.Stdin

func runAsk(ctx context.Context, a *App, raw []string) error {
	p := NewArgParser(raw, "no-stream", "raw")

	prompt, err := askPrompt(p)
	if err != nil {
		return err
	}
	if id := p.Flag("model", "m"); id != "" {
		if err := validate.ModelID(id); err != nil {
			return err
		}
		a.Config.Generation.DefaultModel = id
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	modelID, err := a.ResolveModel(ctx)
	if err != nil {
		return err
	}

	var messages []*model.Message
	if system := p.FlagOrDefault("system", a.Config.Generation.SystemPrompt); system != "" {
		messages = append(messages, model.NewSystemMessage(system))
	}
	messages = append(messages, model.NewUserMessage(prompt))

	markdown := a.Markdown() && !p.BoolFlag("raw")
	start := time.Now()

	var (
		content string
		finish  string
	)
	switch {
	case p.BoolFlag("no-stream"):
		content, err = a.Chat.SendMessage(ctx, messages, modelID, chat.Options{})

	case a.JSON || markdown:
		// Markdown is rendered once the reply is complete
		result, sendErr := a.Chat.SendMessageStream(ctx, messages, modelID, chat.StreamOptions{})
		content, finish, err = result.Content, result.FinishReason, sendErr

	default:
		var b strings.Builder
		for delta, streamErr := range a.Chat.StreamMessage(ctx, messages, modelID, chat.Options{}) {
			if streamErr != nil {
				err = streamErr
				break
			}
			b.WriteString(delta)
			fmt.Fprint(a.Out, delta)
		}
		content = b.String()
		if content != "" {
			fmt.Fprintln(a.Out)
		}
	}
	if err != nil {
		return err
	}
	a.Logger.Debug("ask complete", "model", modelID, "chars", len(content), "duration", time.Since(start))

	switch {
	case a.JSON:
		return NewJSONResponse("ask", AskData{
			Model:        modelID,
			Response:     content,
			FinishReason: finish,
			DurationMs:   time.Since(start).Milliseconds(),
		}).Print(a.Out)
	case markdown:
		fmt.Fprint(a.Out, a.RenderMarkdown(content))
	case p.BoolFlag("no-stream"):
		fmt.Fprintln(a.Out, content)
	}

	if a.Config.Log.Level == "debug" {
		fmt.Fprintf(a.Err, "%s %s | %s | %s\n",
			DimStyle.Render("[Stats]"), modelID,
			time.Since(start).Round(time.Millisecond), a.Metrics.Summary())
	}
	a.RememberModel(context.WithoutCancel(ctx), modelID)
	return nil
}

// askPrompt joins the positional arguments, or reads the prompt from a
// pipe. With both, the piped text follows the arguments.
func askPrompt(p *ArgParser) (string, error) {
	prompt := p.JoinFrom(0)

	if !IsTTY() {
		data, err := io.ReadAll(io.LimitReader(stdin, maxStdinPrompt))
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		if piped := strings.TrimSpace(string(data)); piped != "" {
			if prompt != "" {
				prompt += "\n\n"
			}
			prompt += piped
		}
	}

	if strings.TrimSpace(prompt) == "" {
		return "", ErrMissingArgument("prompt", `pocketchat ask "What is a goroutine?"`)
	}
	return prompt, nil
}
