package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/repteam/rep/internal/formatter"
	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/tasks"
	"github.com/repteam/rep/internal/ui"
)

type catalogEntry struct {
	name  string
	usage string
	run   func(e *tasks.Engine) ui.TaskFunc
}

// taskCatalog lists the batch tasks in the order the picker shows them.
var taskCatalog = []catalogEntry{
	{
		name:  "migrate-stages",
		usage: "Replace job pursuit status with the matching stageId",
		run:   func(e *tasks.Engine) ui.TaskFunc { return e.MigrateStatusToStageID },
	},
	{
		name:  "dedupe-companies",
		usage: "Merge companies sharing a name and remap contacts and pursuits",
		run:   func(e *tasks.Engine) ui.TaskFunc { return e.DedupeCompanies },
	},
	{
		name:  "backfill-companies",
		usage: "Set name_lower on companies where it is missing or stale",
		run:   func(e *tasks.Engine) ui.TaskFunc { return e.BackfillCompanies },
	},
	{
		name:  "fix-engagement-users",
		usage: "Fill engagement userId from the linked contact",
		run:   func(e *tasks.Engine) ui.TaskFunc { return e.FixEngagementUserIDs },
	},
	{
		name:  "fix-orphaned-pursuits",
		usage: "Link pursuits without an engagement to the user's live engagement",
		run:   func(e *tasks.Engine) ui.TaskFunc { return e.FixOrphanedPursuits },
	},
	{
		name:  "migrate-opportunities",
		usage: "Copy legacy opportunities into job targets and pursuits",
		run:   func(e *tasks.Engine) ui.TaskFunc { return e.MigrateOpportunities },
	},
	{
		name:  "delete-opportunities",
		usage: "Delete every legacy opportunity",
		run:   func(e *tasks.Engine) ui.TaskFunc { return e.DeleteLegacyOpportunities },
	},
}

func lookupTask(name string) (catalogEntry, bool) {
	for _, entry := range taskCatalog {
		if entry.name == name {
			return entry, true
		}
	}
	return catalogEntry{}, false
}

func dataTasks(e *tasks.Engine) []ui.Task {
	out := make([]ui.Task, 0, len(taskCatalog)+1)
	for _, entry := range taskCatalog {
		out = append(out, ui.Task{Name: entry.name, Description: entry.usage, Run: entry.run(e)})
	}
	return append(out, ui.Task{
		Name:        "duplicate-users",
		Description: "Count users sharing an email address (read only)",
		Run: func(ctx context.Context, opts tasks.TaskOptions) (*tasks.TaskResult, error) {
			_, res, err := e.FindDuplicateUsers(ctx, opts)
			return res, err
		},
	})
}

// dataAction runs the named catalog task with --dry-run and --tui.
func (r *Runner) dataAction(name string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		entry, ok := lookupTask(name)
		if !ok {
			return fmt.Errorf("%w: unknown task %q", shared.ErrInvalidArgument, name)
		}

		useTUI := cmd.Bool("tui")
		if useTUI {
			if err := r.useFileLogger(); err != nil {
				return err
			}
		}
		engine, err := r.bootstrap(ctx, cmd)
		if err != nil {
			return err
		}

		task := ui.Task{Name: entry.name, Description: entry.usage, Run: entry.run(engine)}
		if useTUI {
			_, err := r.runTUI(ui.NewRunModel(ctx, task, cmd.Bool("dry-run")))
			return err
		}
		return r.runTask(ctx, task, cmd.Bool("dry-run"))
	}
}

// runTask runs t with progress going to the log, then prints the result.
func (r *Runner) runTask(ctx context.Context, t ui.Task, dryRun bool) error {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		r.logProgress(t.Name, progress)
		close(done)
	}()

	res, err := t.Run(ctx, tasks.TaskOptions{DryRun: dryRun, Progress: progress})
	close(progress)
	<-done

	if res != nil {
		if werr := r.writeText(ui.RenderTaskResult(res) + "\n"); werr != nil {
			return werr
		}
	}
	return err
}

// logProgress logs phase changes at info level and every other update at debug level.
func (r *Runner) logProgress(name string, progress <-chan tasks.ProgressUpdate) {
	logger := shared.WithLogger(r.logger, "task", name)
	last := tasks.Phase(-1)
	for update := range progress {
		kv := []any{"phase", update.Phase.String(), "step", update.Step, "total", update.Total}
		if update.Phase != last {
			logger.Info(update.Message, kv...)
			last = update.Phase
			continue
		}
		logger.Debug(update.Message, kv...)
	}
}

// DataDuplicateUsers reports duplicate users in --format, to stdout or --output.
func (r *Runner) DataDuplicateUsers(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	groups, _, err := engine.FindDuplicateUsers(ctx, tasks.TaskOptions{DryRun: true})
	if err != nil {
		return err
	}
	data, err := formatter.ExportDuplicates(groups, format)
	if err != nil {
		return err
	}
	return r.writeExport(cmd.String("output"), data)
}

// DataInspect prints one document, or a filtered listing of a collection.
func (r *Runner) DataInspect(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	inspection, err := engine.Inspect(ctx, tasks.InspectRequest{
		Collection: cmd.StringArg("collection"),
		ID:         cmd.StringArg("id"),
		Where:      cmd.StringSlice("where"),
		Limit:      int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}
	data, err := formatter.ExportInspection(inspection, format)
	if err != nil {
		return err
	}
	return r.writeExport(cmd.String("output"), data)
}

func (r *Runner) writeExport(path string, data []byte) error {
	if err := formatter.Write(r.output, path, data); err != nil {
		return err
	}
	if path != "" && path != "-" {
		r.logger.Info("export written", "path", path, "bytes", len(data))
	}
	return nil
}

// DataRuns lists recorded task runs, newest first.
func (r *Runner) DataRuns(ctx context.Context, cmd *cli.Command) error {
	if err := r.ledger(ctx, cmd); err != nil {
		return err
	}

	runs, err := r.runs.List(map[string]any{
		"name":   cmd.String("name"),
		"status": cmd.String("status"),
		"limit":  int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(runs)
	}
	return r.writeText(ui.RenderRuns(runs) + "\n")
}
