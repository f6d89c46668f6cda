// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring of configuration, logging, metrics and services shared by
// the commands that talk to the server.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/catalog"
	"github.com/jeranaias/pocketchat/internal/chat"
	"github.com/jeranaias/pocketchat/internal/client"
	"github.com/jeranaias/pocketchat/internal/config"
	"github.com/jeranaias/pocketchat/internal/health"
	"github.com/jeranaias/pocketchat/internal/logging"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/storage"
	"github.com/jeranaias/pocketchat/internal/telemetry"
	"github.com/jeranaias/pocketchat/internal/validate"
)

// App holds everything a command needs. Storage is opened on first use.
type App struct {
	Config     *config.Config
	ConfigPath string

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Client  *client.Client
	Chat    *chat.Service
	Models  *catalog.Service

	Out  io.Writer
	Err  io.Writer
	JSON bool

	// Color is true when output is styled.
	Color bool

	// Interactive overrides TTY detection for markdown rendering when set.
	Interactive *bool

	store   storage.Store
	repo    *storage.ChatRepository
	closers []func() error
}

// NewApp loads the configuration named by args and builds the services.
func NewApp(args Args, stdout, stderr io.Writer) (*App, error) {
	cfg, path, err := loadConfig(args)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.Setup(cfg.Log, stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	metrics := telemetry.New()
	c, err := client.New(cfg.ClientConfig(),
		client.WithLogger(logger),
		client.WithObserver(metrics),
	)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	a := &App{
		Config:     cfg,
		ConfigPath: path,
		Logger:     logger,
		Metrics:    metrics,
		Client:     c,
		Chat: chat.NewService(c,
			chat.WithDefaults(cfg.GenerationParams()),
			chat.WithMaxMessageLength(cfg.Generation.MaxMessageLength),
			chat.WithLogger(logger),
		),
		Models:  catalog.NewService(c),
		Out:     stdout,
		Err:     stderr,
		JSON:    args.JSON,
		Color:   ColorsEnabled(cfg.UI.Color) && !args.JSON,
		closers: []func() error{closeLog},
	}
	SetColorProfile(ColorProfile(a.Color))

	logger.Debug("pocketchat starting",
		"version", Version,
		"server", cfg.Server.URL,
		"config", path,
		"storage", cfg.Storage.Backend,
	)
	return a, nil
}

// loadConfig loads the file named by --config, or the default location,
// and applies the global flag overrides.
func loadConfig(args Args) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path = args.ConfigPath
		err  error
	)
	if path != "" {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, "", fmt.Errorf("config file %s: %w", path, statErr)
		}
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
		path = activeConfigPath()
	}
	if err != nil {
		return nil, "", err
	}

	if args.URL != "" {
		if err := validate.ServerURL(args.URL); err != nil {
			return nil, "", err
		}
		cfg.Server.URL = args.URL
	}
	if args.Model != "" {
		if err := validate.ModelID(args.Model); err != nil {
			return nil, "", err
		}
		cfg.Generation.DefaultModel = args.Model
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, path, nil
}

// activeConfigPath returns the config file Load would read: the TOML file
// if present, else the JSON file if present, else the TOML location.
func activeConfigPath() string {
	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath
	}
	if jsonPath, err := config.ConfigPathJSON(); err == nil {
		if _, err := os.Stat(jsonPath); err == nil {
			return jsonPath
		}
	}
	return tomlPath
}

// Close releases the client, storage and log file.
func (a *App) Close() error {
	a.Client.Close()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// STORAGE
// =============================================================================

// Store opens the configured storage backend.
func (a *App) Store() (storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	path, err := a.Config.StoragePath()
	if err != nil {
		return nil, err
	}
	switch a.Config.Storage.Backend {
	case config.BackendSQLite:
		s, err := storage.OpenSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		a.store = s
	default:
		s, err := storage.NewFileStore(path)
		if err != nil {
			return nil, err
		}
		a.store = s
	}
	a.Logger.Debug("storage opened", "backend", a.Config.Storage.Backend, "path", path)
	return a.store, nil
}

// Repository returns the conversation repository over the configured store.
func (a *App) Repository() (*storage.ChatRepository, error) {
	if a.repo != nil {
		return a.repo, nil
	}
	store, err := a.Store()
	if err != nil {
		return nil, err
	}
	a.repo = storage.NewChatRepository(store)
	a.repo.MaxChats = a.Config.Storage.MaxChats
	return a.repo, nil
}

// =============================================================================
// MODEL SELECTION
// =============================================================================

// ResolveModel picks the model for a send: the configured or flagged model,
// then the last model used against this server, then the first model the
// server lists.
func (a *App) ResolveModel(ctx context.Context) (string, error) {
	if id := a.Config.Generation.DefaultModel; id != "" {
		return id, nil
	}

	if store, err := a.Store(); err == nil {
		settings, err := storage.LoadSettings(ctx, store)
		if err == nil && settings.Model != "" && settings.ServerURL == a.Client.BaseURL() {
			return settings.Model, nil
		}
	}

	models, err := a.Models.GetModels(ctx)
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "", apierr.Validation("model", "The server lists no models; pass --model")
	}
	model.SortModels(models)
	a.Logger.Debug("using first listed model", "model", models[0].ID, "available", len(models))
	return models[0].ID, nil
}

// RememberModel records the model as the last one used against this server.
func (a *App) RememberModel(ctx context.Context, id string) {
	store, err := a.Store()
	if err != nil {
		return
	}
	settings := storage.Settings{ServerURL: a.Client.BaseURL(), Model: id}
	if err := storage.SaveSettings(ctx, store, settings); err != nil {
		a.Logger.Warn("failed to save settings", "error", err)
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthChecker returns a checker using the configured timeout and threshold.
func (a *App) HealthChecker() *health.Checker {
	return health.NewChecker(a.Client,
		health.WithTimeout(a.Config.Health.Timeout.Duration),
		health.WithThreshold(a.Config.Health.Threshold),
	)
}

// =============================================================================
// OUTPUT
// =============================================================================

// Markdown reports whether replies are rendered as markdown.
func (a *App) Markdown() bool {
	if a.JSON || !a.Config.UI.RenderMarkdown {
		return false
	}
	if a.Interactive != nil {
		return *a.Interactive
	}
	return IsStdoutTTY()
}

// RenderMarkdown renders content for the terminal. It falls back to the
// plain text when rendering fails.
func (a *App) RenderMarkdown(content string) string {
	style := glamour.WithAutoStyle()
	if !a.Color {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(WrapWidth(a.Config.UI.WordWrap)))
	if err != nil {
		a.Logger.Debug("markdown renderer unavailable", "error", err)
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// Wrap wraps plain text to the configured width.
func (a *App) Wrap(text string) string {
	return WrapText(text, a.Config.UI.WordWrap)
}
