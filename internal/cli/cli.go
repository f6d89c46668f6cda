// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and dispatch for pocketchat.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/jeranaias/pocketchat/internal/apierr"
)

// Version information (overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command is a top-level pocketchat command.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdModels
	CmdHealth
	CmdChats
	CmdConfig
	CmdServe
	CmdBench
	CmdVersion
	CmdHelp
)

// String returns the command name used on the command line.
func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdModels:
		return "models"
	case CmdHealth:
		return "health"
	case CmdChats:
		return "chats"
	case CmdConfig:
		return "config"
	case CmdServe:
		return "serve"
	case CmdBench:
		return "bench"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds the global flags and the arguments left for the command.
type Args struct {
	URL        string
	ConfigPath string
	Model      string
	Verbose    bool
	JSON       bool

	// Raw is everything after the command name, minus global flags
	Raw []string
}

const usageText = `pocketchat - chat with a local OpenAI-compatible model server

Usage:
  pocketchat [global flags] <command> [arguments]

Commands:
  chat                        Interactive chat (default)
    --model, -m ID            Model to use
    --chat, -c REF            Continue a saved chat (id, id prefix or list number)
    --resume                  Continue the most recent chat
  ask "prompt"                Ask a single question
    --model, -m ID            Model to use
    --system TEXT             System prompt
    --no-stream               Wait for the full reply
    --raw                     Never render markdown
  models                      List the models the server offers
  health                      Check that the server is reachable
    --samples N               Number of sequential checks
    --interval D              Delay between checks (e.g. 500ms)
    --probe URL[,URL...]      Check several servers concurrently
  chats [list]                List saved chats
  chats show REF              Print a chat as markdown
  chats export REF            Write a chat to a file
    -o, --output PATH         Destination (default: generated name in .)
    -f, --format FMT          markdown, json or html (default: from PATH)
    --theme THEME             HTML theme, dark or light
  chats delete REF            Delete a chat
  chats search QUERY          Search titles and messages
  config [show]               Print the configuration
  config get KEY              Print one value (e.g. server.url)
  config set KEY VALUE        Change one value in the config file
  config keys                 List all keys
  config path                 Print the config file location
  config init [--force]       Write a config file with the defaults
  serve                       Run a stand-in server that echoes messages
    --addr HOST:PORT          Listen address (default 127.0.0.1:8080)
    --models ID[,ID...]       Models to list (default echo)
    --delay D                 Pause between streamed words (default 30ms)
    --token TOKEN             Require this bearer token
  bench                       Measure time to first token and stream rate
    -m, --models ID[,ID...]   Models to compare (default: current model)
    --all                     Benchmark every model on the server
    -t, --tests NAME[,NAME]   latency, speed, instruction, explanation
    --max-tokens N            Cap each reply (default 128)
  version                     Print version information
  help                        Show this help

Global flags:
  --url URL                   Server base URL (overrides config)
  --config FILE               Config file to use
  --model ID                  Model to use
  --verbose, -v               Debug logging to stderr
  --json                      Machine-readable output

Chat commands:
  /help /new /model [ID] /models /title TEXT /system TEXT /retry
  /history /export [PATH] /chats /load REF /name NAME /stats [full] /quit
  Ctrl+C cancels a reply; Ctrl+C at the prompt or Ctrl+D exits.

Environment:
  POCKETCHAT_HOME             Config directory (default ~/.pocketchat)
  POCKETCHAT_SERVER_URL       Server base URL
  POCKETCHAT_MODEL            Default model
  POCKETCHAT_LOG_LEVEL        Log level
  POCKETCHAT_STORAGE          Storage backend (file or sqlite)
  NO_COLOR                    Disable colors

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer, jsonMode bool) error {
	if jsonMode {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print(w)
	}
	fmt.Fprintf(w, "pocketchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s\n", runtime.Version())
	return nil
}

// =============================================================================
// PARSING
// =============================================================================

// Parse splits argv (without the program name) into a command and its
// arguments. Global flags may appear anywhere. No command means chat.
func Parse(argv []string) (Command, Args, error) {
	remaining, args, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, args, err
	}
	if len(remaining) == 0 {
		return CmdChat, args, nil
	}

	name := strings.ToLower(remaining[0])
	args.Raw = remaining[1:]

	switch name {
	case "chat":
		return CmdChat, args, nil
	case "ask", "a":
		return CmdAsk, args, nil
	case "models", "model", "ls":
		return CmdModels, args, nil
	case "health", "status", "ping":
		return CmdHealth, args, nil
	case "chats", "history":
		return CmdChats, args, nil
	case "config", "cfg":
		return CmdConfig, args, nil
	case "serve", "mock-server":
		return CmdServe, args, nil
	case "bench", "benchmark":
		return CmdBench, args, nil
	case "version", "--version":
		return CmdVersion, args, nil
	case "help", "-h", "--help":
		return CmdHelp, args, nil
	default:
		return CmdHelp, args, NewValidationErrorWithExample("command", name,
			"unknown command", "pocketchat help")
	}
}

// parseGlobalFlags removes the global flags from argv. Everything after a
// bare "--" is left alone.
func parseGlobalFlags(argv []string) ([]string, Args, error) {
	var (
		remaining []string
		args      Args
	)

	value := func(i *int, name string) (string, error) {
		if *i+1 >= len(argv) {
			return "", NewValidationError(name, "", "requires a value")
		}
		*i++
		return argv[*i], nil
	}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if arg == "--" {
			remaining = append(remaining, argv[i:]...)
			break
		}

		name, inline, hasInline := strings.Cut(arg, "=")
		var target *string
		switch name {
		case "--url":
			target = &args.URL
		case "--config":
			target = &args.ConfigPath
		case "--model":
			target = &args.Model
		case "-v", "--verbose":
			args.Verbose = true
			continue
		case "--json":
			args.JSON = true
			continue
		default:
			remaining = append(remaining, arg)
			continue
		}

		if hasInline {
			*target = inline
			continue
		}
		v, err := value(&i, name)
		if err != nil {
			return nil, args, err
		}
		*target = v
	}
	return remaining, args, nil
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run parses argv, runs the command and returns the process exit code.
func Run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	cmd, args, err := Parse(argv)
	if err != nil {
		DisplayError(stderr, cmd.String(), err, false)
		return GetExitCode(err)
	}

	err = execute(ctx, cmd, args, stdout, stderr)
	if err == nil {
		return ExitSuccess
	}

	var xerr *exitError
	switch {
	case errors.As(err, &xerr):
	case args.JSON:
		DisplayError(stdout, cmd.String(), err, true)
	case apierr.IsKind(err, apierr.KindCancelled):
		fmt.Fprintln(stderr, WarningStyle.Render("[Cancelled]"))
	default:
		DisplayError(stderr, cmd.String(), err, false)
	}
	return GetExitCode(err)
}

func execute(ctx context.Context, cmd Command, args Args, stdout, stderr io.Writer) error {
	switch cmd {
	case CmdHelp:
		PrintUsage(stdout)
		return nil
	case CmdVersion:
		return PrintVersion(stdout, args.JSON)
	case CmdConfig:
		// Works without a valid config so that a bad one can be fixed
		return runConfig(args, stdout, stderr)
	}

	app, err := NewApp(args, stdout, stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case CmdAsk:
		return runAsk(ctx, app, args.Raw)
	case CmdModels:
		return runModels(ctx, app, args.Raw)
	case CmdHealth:
		return runHealth(ctx, app, args.Raw)
	case CmdChats:
		return runChats(ctx, app, args.Raw)
	case CmdServe:
		return runServe(ctx, app, args.Raw)
	case CmdBench:
		return runBench(ctx, app, args.Raw)
	default:
		return runChat(ctx, app, args.Raw)
	}
}
