// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// bench.go - Model speed benchmark.
//
// Examples:
//   pocketchat bench
//   pocketchat bench -m llama3,qwen2.5 --tests latency,speed
//   pocketchat bench --all --max-tokens 64 --json

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/pocketchat/internal/benchmark"
	"github.com/jeranaias/pocketchat/internal/util"
)

// BenchData is the JSON payload of `pocketchat bench`.
type BenchData struct {
	Server  string              `json:"server"`
	Fastest string              `json:"fastest,omitempty"`
	Results []*benchmark.Result `json:"results"`
}

func runBench(ctx context.Context, a *App, raw []string) error {
	p := NewArgParser(raw, "all")

	maxTokens, err := p.FlagInt("max-tokens", 128)
	if err != nil {
		return err
	}

	opts := []benchmark.Option{
		benchmark.WithMaxTokens(maxTokens),
		benchmark.WithLogger(a.Logger),
	}
	if names := splitList(p.Flag("tests", "t")); len(names) > 0 {
		tests, unknown := benchmark.SelectTests(names)
		if len(unknown) > 0 {
			return NewValidationErrorWithExample("tests", strings.Join(unknown, ","),
				"unknown test", "pocketchat bench --tests latency,speed,instruction,explanation")
		}
		opts = append(opts, benchmark.WithTests(tests...))
	}

	models, err := benchModels(ctx, a, p)
	if err != nil {
		return err
	}

	if !a.JSON {
		fmt.Fprintf(a.Err, "Benchmarking %s on %s...\n", strings.Join(models, ", "), a.Client.BaseURL())
	}
	cmp, err := benchmark.NewRunner(a.Chat, opts...).RunComparison(ctx, models)
	data := BenchData{Server: a.Client.BaseURL(), Results: cmp.Ranked()}
	if fastest := cmp.Fastest(); fastest != nil {
		data.Fastest = fastest.Model
	}

	switch {
	case a.JSON && err == nil:
		return NewJSONResponse("bench", data).Print(a.Out)
	case !a.JSON:
		writeBenchTable(a, data)
	}
	if err != nil {
		return NewCommandError("bench", "run", err)
	}
	return nil
}

// benchModels returns the models named with -m, every model with --all, or
// the resolved default.
func benchModels(ctx context.Context, a *App, p *ArgParser) ([]string, error) {
	if ids := splitList(p.Flag("models", "m")); len(ids) > 0 {
		return ids, nil
	}
	if p.BoolFlag("all") {
		infos, err := a.Models.GetModels(ctx)
		if err != nil {
			return nil, NewCommandError("bench", "list models", err)
		}
		ids := make([]string, 0, len(infos))
		for _, m := range infos {
			ids = append(ids, m.ID)
		}
		if len(ids) == 0 {
			return nil, ErrNotFound("model", "(any)")
		}
		return ids, nil
	}
	id, err := a.ResolveModel(ctx)
	if err != nil {
		return nil, err
	}
	return []string{id}, nil
}

func writeBenchTable(a *App, data BenchData) {
	fmt.Fprintln(a.Out, TitleStyle.Render("Benchmark on "+data.Server))
	fmt.Fprintln(a.Out, util.PadWidth("Model", 28)+util.PadWidth("TTFT", 10)+
		util.PadWidth("Rate", 12)+util.PadWidth("Quality", 9)+"Passed")
	fmt.Fprintln(a.Out, strings.Repeat("-", 68))

	for _, r := range data.Results {
		name := util.TruncateWidth(r.Model, 26)
		if r.Model == data.Fastest {
			name = HighlightStyle.Render(util.PadWidth(name, 28))
		} else {
			name = util.PadWidth(name, 28)
		}
		fmt.Fprintf(a.Out, "%s%s%s%s%d/%d\n", name,
			util.PadWidth(benchmark.FormatTTFT(r.AvgTTFT), 10),
			util.PadWidth(benchmark.FormatRate(r.AvgChunksPerSec), 12),
			util.PadWidth(benchmark.FormatQualityScore(qualityOrNA(r)), 9),
			r.Passed, r.Passed+r.Failed)
		for _, t := range r.Tests {
			if t.Error != "" {
				fmt.Fprintf(a.Out, "  %s %s: %s\n", ErrorStyle.Render("[FAIL]"), t.Name, t.Error)
			}
		}
	}
}

func qualityOrNA(r *benchmark.Result) float64 {
	if r.Passed == 0 {
		return -1
	}
	return r.AvgQualityScore
}
