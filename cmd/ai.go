package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/ui"
)

// AIDiagnose lists the models each API version exposes and pings the best candidate.
func (r *Runner) AIDiagnose(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}
	if r.probe == nil {
		return fmt.Errorf("%w: ai.api_key (or GEMINI_API_KEY) is not set", shared.ErrMissingCredentials)
	}

	report, err := engine.Diagnose(ctx, r.probe)
	if report != nil {
		var werr error
		if cmd.Bool("json") {
			werr = r.writeJSON(report)
		} else {
			werr = r.writeText(ui.RenderDiagnose(report) + "\n")
		}
		if werr != nil {
			return werr
		}
	}
	return err
}

// AIGenerate sends a prompt through the fallback generator and prints the answer.
func (r *Runner) AIGenerate(ctx context.Context, cmd *cli.Command) error {
	prompt := strings.TrimSpace(cmd.StringArg("prompt"))
	if prompt == "" {
		return fmt.Errorf("%w: prompt", shared.ErrMissingArgument)
	}
	if err := r.loadConfig(cmd); err != nil {
		return err
	}
	r.openServices(ctx)
	if r.generator == nil {
		return fmt.Errorf("%w: ai.api_key (or GEMINI_API_KEY) is not set", shared.ErrMissingCredentials)
	}

	opts := services.GenerateOptions{
		Models:          cmd.StringSlice("model"),
		Temperature:     float32(cmd.Float("temperature")),
		MaxOutputTokens: int32(cmd.Int("max-tokens")),
		JSON:            cmd.Bool("json"),
	}
	text, err := r.generator.Generate(ctx, prompt, opts)
	if err != nil {
		return err
	}
	if cmd.Bool("strip") {
		text = services.StripFences(text)
	}
	return r.writeText(text + "\n")
}
