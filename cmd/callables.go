package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/tasks"
)

// decodeInput reads the request body from --data or --file into v.
// It reports whether a body was given.
func (r *Runner) decodeInput(cmd *cli.Command, v any) (bool, error) {
	var data []byte
	switch {
	case cmd.String("data") != "" && cmd.String("file") != "":
		return false, fmt.Errorf("%w: cannot specify both --data and --file", shared.ErrInvalidArgument)
	case cmd.String("data") != "":
		data = []byte(cmd.String("data"))
	case cmd.String("file") != "":
		var err error
		if data, err = r.readInput(cmd.String("file")); err != nil {
			return false, err
		}
	default:
		return false, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: request body: %v", shared.ErrInvalidInput, err)
	}
	return true, nil
}

func (r *Runner) requireInput(cmd *cli.Command, v any) error {
	ok, err := r.decodeInput(cmd, v)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: either --data or --file must be provided", shared.ErrMissingArgument)
	}
	return nil
}

// ClientProvision runs provisionClient on behalf of --rep.
func (r *Runner) ClientProvision(ctx context.Context, cmd *cli.Command) error {
	var req tasks.ProvisionRequest
	if err := r.requireInput(cmd, &req); err != nil {
		return err
	}
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	result, err := engine.ProvisionClient(ctx, cmd.String("rep"), req)
	if err != nil {
		return err
	}
	return r.writeJSON(result)
}

func (r *Runner) ClientRepair(ctx context.Context, cmd *cli.Command) error {
	var req tasks.RepairRequest
	if err := r.requireInput(cmd, &req); err != nil {
		return err
	}
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	result, err := engine.RepairAccount(ctx, req)
	if err != nil {
		return err
	}
	return r.writeJSON(result)
}

// ApplicationRespond sends a response as the advisor named by --as-uid and --as-email.
func (r *Runner) ApplicationRespond(ctx context.Context, cmd *cli.Command) error {
	var req tasks.ResponseRequest
	if err := r.requireInput(cmd, &req); err != nil {
		return err
	}
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	caller := &services.Caller{UID: cmd.String("as-uid"), Email: cmd.String("as-email")}
	result, err := engine.SendApplicationResponse(ctx, caller, req)
	if err != nil {
		return err
	}
	return r.writeJSON(result)
}

func (r *Runner) ApplicationDraft(ctx context.Context, cmd *cli.Command) error {
	var req tasks.DraftRequest
	if err := r.requireInput(cmd, &req); err != nil {
		return err
	}
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	result, err := engine.GenerateApplicationDraft(ctx, req)
	if err != nil {
		return err
	}
	return r.writeJSON(result)
}

// ApplicationATS runs a simulation from --data and the resume flags, flags winning.
// A .pdf resume is sent as a buffer, anything else as text.
func (r *Runner) ApplicationATS(ctx context.Context, cmd *cli.Command) error {
	var in tasks.AtsInput
	if _, err := r.decodeInput(cmd, &in); err != nil {
		return err
	}

	if v := cmd.String("role"); v != "" {
		in.TargetRoleRaw = v
	}
	if v := cmd.String("comp"); v != "" {
		in.TargetComp = v
	}
	if v := cmd.String("resume-url"); v != "" {
		in.ResumeURL = v
	}
	if v := cmd.String("user"); v != "" {
		in.UserID = v
	}
	if path := cmd.String("resume"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read resume: %w", err)
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			in.ResumeBuffer = base64.StdEncoding.EncodeToString(data)
		} else {
			in.ResumeText = string(data)
		}
	}

	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	result, err := engine.SimulateATS(ctx, in)
	if err != nil {
		return err
	}
	return r.writeJSON(result)
}
