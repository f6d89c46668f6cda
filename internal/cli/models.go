// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - The models and health commands.

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/pocketchat/internal/health"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/util"
)

// =============================================================================
// MODELS
// =============================================================================

func runModels(ctx context.Context, a *App, _ []string) error {
	models, err := a.Models.GetModels(ctx)
	if err != nil {
		return NewCommandError("models", "list", err)
	}
	model.SortModels(models)

	if a.JSON {
		return NewJSONResponse("models", ModelsData{
			Server: a.Client.BaseURL(),
			Models: models,
		}).Print(a.Out)
	}

	fmt.Fprintln(a.Out, TitleStyle.Render("Models on "+a.Client.BaseURL()))
	if len(models) == 0 {
		fmt.Fprintln(a.Out, DimStyle.Render("  (none)"))
		return nil
	}
	writeModelList(a, models, a.Config.Generation.DefaultModel)
	return nil
}

// writeModelList prints one model per line, marking current.
func writeModelList(a *App, models []model.ModelInfo, current string) {
	for _, m := range models {
		marker := "  "
		name := m.ID
		if m.ID == current {
			marker = "* "
			name = HighlightStyle.Render(name)
		}
		line := marker + name
		if display := m.DisplayName(); display != m.ID {
			line += "  " + DimStyle.Render("("+display+")")
		}
		if m.OwnedBy != "" {
			line += "  " + DimStyle.Render(m.OwnedBy)
		}
		fmt.Fprintln(a.Out, line)
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func runHealth(ctx context.Context, a *App, raw []string) error {
	p := NewArgParser(raw)

	samples, err := p.FlagInt("samples", a.Config.Health.Samples)
	if err != nil {
		return err
	}
	interval, err := p.FlagDuration("interval", a.Config.Health.Interval.Duration)
	if err != nil {
		return err
	}

	if urls := splitList(p.Flag("probe")); len(urls) > 0 {
		return runProbe(ctx, a, urls)
	}

	summary := a.HealthChecker().CheckMultiple(ctx, samples, interval)
	a.Logger.Debug("health check done",
		"server", a.Client.BaseURL(),
		"samples", len(summary.Samples),
		"success_rate", summary.SuccessRate,
	)

	if a.JSON {
		if err := NewJSONResponse("health", HealthData{
			Server:  a.Client.BaseURL(),
			Summary: &summary,
		}).Print(a.Out); err != nil {
			return err
		}
	} else {
		writeHealth(a, summary)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !summary.IsHealthy {
		return &exitError{code: ExitNetworkError}
	}
	return nil
}

func writeHealth(a *App, s health.Summary) {
	fmt.Fprintln(a.Out, TitleStyle.Render("Server "+a.Client.BaseURL()))
	for i, st := range s.Samples {
		fmt.Fprintf(a.Out, "  %s #%d %s\n", statusBadge(st), i+1, describeStatus(st))
	}

	verdict := "healthy"
	if !s.IsHealthy {
		verdict = "unhealthy"
	}
	fmt.Fprintf(a.Out, "\n%s %s  %.0f%% ok", RenderStatus(verdict), verdict, s.SuccessRate*100)
	if s.AverageLatency > 0 {
		fmt.Fprintf(a.Out, ", avg %s", s.AverageLatency.Round(time.Millisecond))
	}
	fmt.Fprintln(a.Out)
}

func runProbe(ctx context.Context, a *App, urls []string) error {
	results := health.Probe(ctx, urls, a.Config.ClientConfig(),
		health.WithTimeout(a.Config.Health.Timeout.Duration),
		health.WithThreshold(a.Config.Health.Threshold),
	)

	healthy := 0
	for _, r := range results {
		if r.Status.IsHealthy {
			healthy++
		}
	}

	if a.JSON {
		if err := NewJSONResponse("health", HealthData{Probes: results}).Print(a.Out); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(a.Out, TitleStyle.Render("Probe"))
		width := 0
		for _, r := range results {
			width = max(width, util.StringWidth(r.URL))
		}
		for _, r := range results {
			fmt.Fprintf(a.Out, "  %s %s  %s\n", statusBadge(r.Status), util.PadWidth(r.URL, width), describeStatus(r.Status))
		}
	}

	if healthy == 0 {
		return &exitError{code: ExitNetworkError}
	}
	return nil
}

func statusBadge(st health.Status) string {
	if st.IsHealthy {
		return RenderStatus("ok")
	}
	return RenderStatus("fail")
}

func describeStatus(st health.Status) string {
	if !st.IsHealthy {
		return ErrorStyle.Render(st.Error)
	}
	return fmt.Sprintf("%s, %d model(s)", st.Latency.Round(time.Millisecond), st.ModelsAvailable)
}
