package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/ui"
)

// BillingHandoffs lists recorded handoffs, newest first.
func (r *Runner) BillingHandoffs(ctx context.Context, cmd *cli.Command) error {
	if err := r.ledger(ctx, cmd); err != nil {
		return err
	}

	criteria := map[string]any{
		"user_id": cmd.String("user"),
		"outcome": cmd.String("outcome"),
		"limit":   int(cmd.Int("limit")),
	}
	if cmd.Bool("partial") {
		criteria["partial"] = true
	}

	reports, err := r.handoffs.List(criteria)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(reports)
	}
	return r.writeText(ui.RenderHandoffs(reports) + "\n")
}

func (r *Runner) BillingHandoff(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: handoff id", shared.ErrMissingArgument)
	}
	if err := r.ledger(ctx, cmd); err != nil {
		return err
	}

	report, err := r.handoffs.Get(id)
	if err != nil {
		return err
	}
	return r.writeText(ui.RenderHandoff(report) + "\n")
}
