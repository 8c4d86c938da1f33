package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
	"github.com/repteam/rep/internal/tasks"
	"github.com/repteam/rep/internal/ui"
)

// TriggerPlaced runs the placement handoff for one user.
//
// Without --before the stored document minus its status is used, so the handoff runs
// whenever the stored user is placed.
func (r *Runner) TriggerPlaced(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	userID := cmd.String("user")
	after, err := r.readDocument(cmd.String("after"))
	if err != nil {
		return err
	}
	if after == nil {
		doc, err := r.store.Get(ctx, store.Users, userID)
		if err != nil {
			return fmt.Errorf("failed to load user %s: %w", userID, err)
		}
		after = doc.Data
	}

	before, err := r.readDocument(cmd.String("before"))
	if err != nil {
		return err
	}
	if before == nil {
		before = maps.Clone(after)
		delete(before, "status")
	}

	report, err := engine.PlaceClient(ctx, tasks.PlacementEvent{UserID: userID, Before: before, After: after})
	if report != nil {
		if werr := r.writeText(ui.RenderHandoff(report) + "\n"); werr != nil {
			return werr
		}
	}
	return err
}

// TriggerApplication replays onApplicationCreate for a stored application.
func (r *Runner) TriggerApplication(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	id := cmd.StringArg("id")
	data, err := r.loadDocument(ctx, store.Applications, id)
	if err != nil {
		return err
	}

	advisor, err := engine.OnApplicationCreate(ctx, id, data)
	if err != nil {
		return err
	}
	return r.writef("✓ application %s acknowledged, advisor %s <%s>\n", id, advisor.Name, advisor.Email)
}

// TriggerIntake replays onIntakeCreated for a stored intake response.
func (r *Runner) TriggerIntake(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	id := cmd.StringArg("id")
	data, err := r.loadDocument(ctx, store.IntakeResponses, id)
	if err != nil {
		return err
	}

	engagementID, err := engine.OnIntakeCreated(ctx, id, data)
	if err != nil {
		return err
	}
	if engagementID == "" {
		return r.writef("intake %s skipped: no user to attach an engagement to\n", id)
	}
	return r.writef("✓ intake %s created engagement %s\n", id, engagementID)
}

func (r *Runner) loadDocument(ctx context.Context, collection, id string) (map[string]any, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: document id", shared.ErrMissingArgument)
	}
	doc, err := r.store.Get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s/%s: %w", collection, id, err)
	}
	return doc.Data, nil
}

// readDocument parses a JSON object from path, or stdin for "-". An empty path yields nil.
func (r *Runner) readDocument(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := r.readInput(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s is not a JSON object: %v", shared.ErrInvalidInput, path, err)
	}
	return doc, nil
}

func (r *Runner) readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(r.input)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
