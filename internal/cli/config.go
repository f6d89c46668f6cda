// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - The config command.
//
// Examples:
//   pocketchat config                          Show the effective configuration
//   pocketchat config get server.url
//   pocketchat config set server.url http://192.168.1.20:8080
//   pocketchat config set retry.max_retries 0
//   pocketchat config set generation.temperature ""   Back to the server default
//   pocketchat config init

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/pocketchat/internal/config"
)

func runConfig(args Args, stdout, stderr io.Writer) error {
	p := NewArgParser(args.Raw, "force")

	path := args.ConfigPath
	if path == "" {
		path = activeConfigPath()
	}

	switch sub := strings.ToLower(p.Subcommand()); sub {
	case "", "show":
		cfg, _, err := loadConfig(args)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config", redacted(cfg)).Print(stdout)
		}
		fmt.Fprintln(stdout, DimStyle.Render("# "+path))
		fmt.Fprint(stdout, cfg.String())
		return nil

	case "get":
		key := p.Positional(1)
		if key == "" {
			return ErrMissingArgument("key", "pocketchat config get server.url")
		}
		cfg, _, err := loadConfig(args)
		if err != nil {
			return err
		}
		value, err := cfg.GetString(key)
		if err != nil {
			return ErrNotFound("config key", key)
		}
		if strings.HasPrefix(key, "server.headers") && value != "" {
			value = "[REDACTED]"
		}
		return writeConfigValue(stdout, args.JSON, key, value)

	case "set":
		key, value := p.Positional(1), p.JoinFrom(2)
		if key == "" || p.PositionalCount() < 3 {
			return ErrMissingArgument("key and value", "pocketchat config set server.url http://127.0.0.1:8080")
		}
		cfg, err := config.ReadFile(path)
		if err != nil {
			return err
		}
		if err := cfg.Set(key, value); err != nil {
			return NewValidationError(key, value, err.Error())
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := saveConfig(cfg, path); err != nil {
			return err
		}
		shown, _ := cfg.GetString(key)
		if !args.JSON {
			fmt.Fprintf(stderr, "%s saved to %s\n", SuccessStyle.Render("[OK]"), path)
		}
		return writeConfigValue(stdout, args.JSON, key, shown)

	case "keys":
		keys := config.GetAllKeys()
		if args.JSON {
			return NewJSONResponse("config", keys).Print(stdout)
		}
		for _, key := range keys {
			fmt.Fprintln(stdout, key)
		}
		return nil

	case "path":
		if args.JSON {
			return NewJSONResponse("config", map[string]string{"path": path}).Print(stdout)
		}
		fmt.Fprintln(stdout, path)
		return nil

	case "init":
		if _, err := os.Stat(path); err == nil && !p.BoolFlag("force") {
			return NewValidationErrorWithExample("config", path, "file already exists", "pocketchat config init --force")
		}
		if err := saveConfig(config.Default(), path); err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config", map[string]string{"path": path}).Print(stdout)
		}
		fmt.Fprintf(stdout, "%s wrote %s\n", SuccessStyle.Render("[OK]"), path)
		return nil

	default:
		return NewValidationErrorWithExample("subcommand", sub, "unknown config subcommand",
			"pocketchat config [show|get KEY|set KEY VALUE|keys|path|init]")
	}
}

func saveConfig(cfg *config.Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

// redacted returns a copy of cfg safe to print.
func redacted(cfg *config.Config) *config.Config {
	safe := cfg.Clone()
	for k := range safe.Server.Headers {
		safe.Server.Headers[k] = "[REDACTED]"
	}
	return safe
}

func writeConfigValue(w io.Writer, jsonMode bool, key, value string) error {
	if jsonMode {
		return NewJSONResponse("config", ConfigValue{Key: key, Value: value}).Print(w)
	}
	fmt.Fprintln(w, value)
	return nil
}
