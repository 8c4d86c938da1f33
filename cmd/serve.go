package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/repteam/rep/internal/server"
	"github.com/repteam/rep/internal/shared"
)

// Serve runs the HTTP server until the context is cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.bootstrap(ctx, cmd)
	if err != nil {
		return err
	}

	cfg := r.config
	if host := cmd.String("host"); host != "" {
		cfg.Server.Host = host
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = int(cmd.Int("port"))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if r.identity == nil {
		return fmt.Errorf("%w: the identity provider is needed to verify callers", shared.ErrMissingCredentials)
	}

	logger := shared.WithLogger(r.logger, "component", "server")
	if cfg.Server.EventSecret == "" {
		logger.Warn("server.event_secret is empty, every event delivery will be rejected")
	}

	handler := server.NewHandler(server.NewAPI(engine, logger), r.identity, cfg.Server, logger)
	return server.New(handler, cfg.Server, logger).Run(ctx)
}
