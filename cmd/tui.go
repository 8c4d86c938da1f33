package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/tasks"
	"github.com/repteam/rep/internal/ui"
)

const tuiLogPath = "./tmp/rep-tui.log"

// DataTUI lets the user pick a data task, confirm it and watch it run.
func (r *Runner) DataTUI(ctx context.Context, cmd *cli.Command) error {
	if err := r.useFileLogger(); err != nil {
		return err
	}
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	_, err = r.runTUI(ui.NewPickerModel(ctx, dataTasks(engine)))
	return err
}

// useFileLogger redirects logs to a file so they do not interfere with the TUI rendering.
func (r *Runner) useFileLogger() error {
	fileLogger, closeFn, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.logger = fileLogger
	r.closers = append(r.closers, closeFn)
	return nil
}

// runTUI runs model to completion and returns the outcome of the last task it ran.
func (r *Runner) runTUI(model *ui.Model) (*tasks.TaskResult, error) {
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}
	if m, ok := final.(*ui.Model); ok {
		return m.Result()
	}
	return nil, nil
}
