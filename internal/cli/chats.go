// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chats.go - Saved chat management.
//
// A chat is referenced by its id, a unique id prefix, or its number in
// `pocketchat chats list`.

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/pocketchat/internal/export"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/storage"
)

func runChats(ctx context.Context, a *App, raw []string) error {
	p := NewArgParser(raw)

	repo, err := a.Repository()
	if err != nil {
		return err
	}

	switch sub := strings.ToLower(p.Subcommand()); sub {
	case "", "list", "ls":
		metas, err := repo.List(ctx)
		if err != nil {
			return NewCommandError("chats", "list", err)
		}
		return writeChatList(a, "chats", metas)

	case "search", "find":
		query := p.JoinFrom(1)
		if query == "" {
			return ErrMissingArgument("query", "pocketchat chats search goroutines")
		}
		metas, err := repo.Search(ctx, query)
		if err != nil {
			return NewCommandError("chats", "search", err)
		}
		return writeChatList(a, "chats", metas)

	case "show", "cat":
		conv, err := findChat(ctx, repo, p.Positional(1))
		if err != nil {
			return err
		}
		if a.JSON {
			return NewJSONResponse("chats", conv).Print(a.Out)
		}
		text := export.Markdown(conv)
		if a.Markdown() {
			text = a.RenderMarkdown(text)
		}
		fmt.Fprint(a.Out, text)
		return nil

	case "export":
		conv, err := findChat(ctx, repo, p.Positional(1))
		if err != nil {
			return err
		}
		out := p.Flag("output", "o")
		format := export.FormatFromPath(out)
		if f := p.Flag("format", "f"); f != "" {
			if format, err = export.ParseFormat(f); err != nil {
				return NewValidationErrorWithExample("format", f, err.Error(),
					"pocketchat chats export 1 --format html")
			}
		}
		opts := export.DefaultOptions()
		if theme := p.Flag("theme"); theme != "" {
			opts.Theme = theme
		}
		exporter, err := export.New(format, opts)
		if err != nil {
			return NewCommandError("chats", "export", err)
		}
		path, err := export.WriteFile(conv, exporter, ".", out)
		if err != nil {
			return NewCommandError("chats", "export", err)
		}
		if a.JSON {
			return NewJSONResponse("chats", map[string]string{"exported": conv.ID, "path": path, "format": string(format)}).Print(a.Out)
		}
		fmt.Fprintf(a.Err, "%s wrote %s\n", SuccessStyle.Render("[OK]"), path)
		return nil

	case "delete", "rm":
		conv, err := findChat(ctx, repo, p.Positional(1))
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, conv.ID); err != nil {
			return NewCommandError("chats", "delete", err)
		}
		if a.JSON {
			return NewJSONResponse("chats", map[string]string{"deleted": conv.ID}).Print(a.Out)
		}
		fmt.Fprintf(a.Out, "%s deleted %q\n", SuccessStyle.Render("[OK]"), conv.DisplayTitle())
		return nil

	default:
		return NewValidationErrorWithExample("subcommand", sub, "unknown chats subcommand",
			"pocketchat chats [list|show REF|export REF|delete REF|search QUERY]")
	}
}

func findChat(ctx context.Context, repo *storage.ChatRepository, ref string) (*model.Conversation, error) {
	if ref == "" {
		return nil, ErrMissingArgument("chat", "pocketchat chats show 1")
	}
	conv, err := repo.Find(ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound("chat", ref)
	}
	return conv, err
}

func writeChatList(a *App, command string, metas []model.ConversationMeta) error {
	if a.JSON {
		if metas == nil {
			metas = []model.ConversationMeta{}
		}
		return NewJSONResponse(command, metas).Print(a.Out)
	}
	fmt.Fprint(a.Out, storage.FormatChatList(metas))
	if len(metas) == 0 {
		fmt.Fprintln(a.Out)
	}
	return nil
}
