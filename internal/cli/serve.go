// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - Stand-in server for trying pocketchat without a model.
//
// Examples:
//   pocketchat serve
//   pocketchat serve --addr 127.0.0.1:9000 --models small,large --delay 0s

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/pocketchat/internal/server"
)

const defaultServeDelay = 30 * time.Millisecond

func runServe(ctx context.Context, a *App, raw []string) error {
	p := NewArgParser(raw)

	delay, err := p.FlagDuration("delay", defaultServeDelay)
	if err != nil {
		return err
	}
	addr := p.FlagOrDefault("addr", server.DefaultAddr)

	opts := []server.Option{
		server.WithLogger(a.Logger),
		server.WithChunkDelay(delay),
		server.WithToken(p.Flag("token")),
	}
	if models := splitList(p.Flag("models")); len(models) > 0 {
		opts = append(opts, server.WithModels(models...))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(a.Err, "%s serving on http://%s (Ctrl+C to stop)\n", SuccessStyle.Render("[OK]"), addr)
	if err := server.New(opts...).ListenAndServe(ctx, addr); err != nil {
		return NewCommandError("serve", "listen", err)
	}
	return nil
}
