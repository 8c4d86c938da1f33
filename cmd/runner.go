package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"

	"github.com/repteam/rep/internal/repositories"
	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
	"github.com/repteam/rep/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Collaborators left nil in [RunnerOpts] are built from the configuration on first use.
type Runner struct {
	config     *shared.Config
	configured bool
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	httpClient *http.Client

	store      store.Store
	billing    services.Billing
	mailer     services.Mailer
	identity   services.Identity
	generator  services.Generator
	locker     services.Locker
	probe      tasks.ModelProbe
	googleOpts []option.ClientOption

	db       *sql.DB
	runs     *repositories.TaskRunRepository
	handoffs *repositories.HandoffRepository

	engine  *tasks.Engine
	closers []func() error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A non-nil Config is used as is: the config file, .env and environment are not read.
type RunnerOpts struct {
	Config     *shared.Config
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	HTTPClient *http.Client

	Store     store.Store
	Billing   services.Billing
	Mailer    services.Mailer
	Identity  services.Identity
	Generator services.Generator
	Locker    services.Locker
	Probe     tasks.ModelProbe
	DB        *sql.DB
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	r := &Runner{
		config:     opts.Config,
		configured: opts.Config != nil,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		httpClient: opts.HTTPClient,
		store:      opts.Store,
		billing:    opts.Billing,
		mailer:     opts.Mailer,
		identity:   opts.Identity,
		generator:  opts.Generator,
		locker:     opts.Locker,
		probe:      opts.Probe,
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}
	if r.logger == nil {
		r.logger = shared.NewLogger(nil)
	}
	if r.output == nil {
		r.output = os.Stdout
	}
	if r.input == nil {
		r.input = os.Stdin
	}
	if r.httpClient == nil {
		r.httpClient = http.DefaultClient
	}
	if opts.DB != nil {
		r.setDB(opts.DB)
	}
	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, configCommand, serveCommand, triggerCommand, clientCommand,
		applicationCommand, aiCommand, billingCommand, dataCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig applies defaults, then the TOML file, then .env and the process environment.
func (r *Runner) loadConfig(cmd *cli.Command) error {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if r.configured {
		return nil
	}

	if err := shared.LoadEnvFile(cmd.String("env-file")); err != nil {
		return err
	}

	config := shared.DefaultConfig()
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil {
		if config, err = shared.LoadConfig(path); err != nil {
			return err
		}
	} else {
		r.logger.Debug("config file not found, using defaults", "path", path)
	}
	config.ApplyEnv(os.Getenv)

	r.config = config
	r.configured = true
	return nil
}

// bootstrap builds the engine and everything it needs. Providers without credentials are left
// out and the operations that need them fail with [shared.ErrServiceUnavailable].
func (r *Runner) bootstrap(ctx context.Context, cmd *cli.Command) (*tasks.Engine, error) {
	if r.engine != nil {
		return r.engine, nil
	}
	if err := r.loadConfig(cmd); err != nil {
		return nil, err
	}
	if err := r.openStore(ctx, cmd.Bool("memory")); err != nil {
		return nil, err
	}
	r.openServices(ctx)
	r.openLedger(ctx)

	deps := tasks.Deps{
		Store:      r.store,
		Billing:    r.billing,
		Mailer:     r.mailer,
		Identity:   r.identity,
		Generator:  r.generator,
		Locker:     r.locker,
		HTTPClient: r.httpClient,
		Logger:     r.logger,
		Config:     r.config,
	}
	if r.runs != nil {
		deps.Runs = r.runs
	}
	if r.handoffs != nil {
		deps.Handoffs = r.handoffs
	}

	r.engine = tasks.NewEngine(deps)
	return r.engine, nil
}

func (r *Runner) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	if r.googleOpts != nil {
		return r.googleOpts, nil
	}
	opts, err := shared.GoogleClientOptions(ctx, r.config.Firebase.CredentialsFile)
	if err != nil {
		return nil, err
	}
	r.googleOpts = opts
	return opts, nil
}

func (r *Runner) openStore(ctx context.Context, memory bool) error {
	if r.store != nil {
		return nil
	}
	if memory {
		r.logger.Warn("using the in-memory store, nothing will be persisted")
		r.store = store.NewMemory()
		return nil
	}
	if r.config.Firebase.ProjectID == "" {
		return fmt.Errorf("%w: firebase.project_id (or FIREBASE_PROJECT_ID) is required", shared.ErrMissingConfig)
	}

	opts, err := r.clientOptions(ctx)
	if err != nil {
		return err
	}
	fs, err := store.NewFirestore(ctx, r.config.Firebase.ProjectID, opts...)
	if err != nil {
		return err
	}
	r.store = fs
	r.closers = append(r.closers, fs.Close)
	return nil
}

// openServices builds each provider the config has credentials for.
func (r *Runner) openServices(ctx context.Context) {
	cfg := r.config
	logger := shared.WithLogger(r.logger, "component", "bootstrap")

	skip := func(name string, err error) {
		if errors.Is(err, shared.ErrMissingCredentials) {
			logger.Debug("provider not configured", "provider", name, "err", err)
			return
		}
		logger.Warn("provider unavailable", "provider", name, "err", err)
	}

	if r.billing == nil {
		if b, err := services.NewStripeBilling(cfg.Billing.RepSecretKey, cfg.Billing.CPFSecretKey); err != nil {
			skip("stripe", err)
		} else {
			r.billing = b
		}
	}

	if r.mailer == nil {
		if cfg.Email.APIKey == "" {
			skip("resend", fmt.Errorf("%w: RESEND_API_KEY is not set", shared.ErrMissingCredentials))
		} else {
			r.mailer = services.NewResendMailer(cfg.Email.APIKey, cfg.Email.From)
		}
	}

	if r.identity == nil && cfg.Firebase.ProjectID != "" {
		opts, err := r.clientOptions(ctx)
		if err == nil {
			var id *services.FirebaseIdentity
			if id, err = services.NewFirebaseIdentity(ctx, cfg.Firebase.ProjectID, opts...); err == nil {
				r.identity = id
			}
		}
		if err != nil {
			skip("firebase auth", err)
		}
	}

	if r.generator == nil {
		if client, err := services.NewGenAIClient(ctx, cfg.AI); err != nil {
			skip("gemini", err)
		} else {
			r.generator = services.NewFallbackGenerator(client, cfg.AI, shared.WithLogger(r.logger, "component", "gemini"))
		}
	}

	if r.probe == nil && cfg.AI.APIKey != "" {
		r.probe = services.NewProbeClient(cfg.AI.BaseURL, cfg.AI.APIKey, r.httpClient)
	}

	if r.locker == nil && cfg.Redis.URL != "" {
		if l, err := services.NewRedisLocker(cfg.Redis.URL); err != nil {
			skip("redis", err)
		} else {
			r.locker = l
			r.closers = append(r.closers, l.Close)
		}
	}
}

// openLedger opens the SQLite run ledger. A ledger failure only disables recording.
func (r *Runner) openLedger(ctx context.Context) {
	if r.db != nil {
		return
	}
	db, err := openDatabase(ctx, r.config.Database)
	if err != nil {
		r.logger.Warn("run ledger unavailable, runs will not be recorded", "path", r.config.Database.Path, "err", err)
		return
	}
	r.setDB(db)
	r.closers = append(r.closers, db.Close)
}

// ledger opens only the run ledger, for commands that never touch the document store.
func (r *Runner) ledger(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd); err != nil {
		return err
	}
	r.openLedger(ctx)
	if r.db == nil {
		return fmt.Errorf("%w: run ledger at %s", shared.ErrServiceUnavailable, r.config.Database.Path)
	}
	return nil
}

func (r *Runner) setDB(db *sql.DB) {
	r.db = db
	r.runs = repositories.NewTaskRunRepository(db)
	r.handoffs = repositories.NewHandoffRepository(db)
}

func openDatabase(ctx context.Context, cfg shared.DatabaseConfig) (*sql.DB, error) {
	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)

	if err := shared.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// Close releases every client opened by bootstrap, most recent first.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runner) writeJSON(data any) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return r.writeText(string(output) + "\n")
}

func (r *Runner) writeText(s string) error {
	if _, err := io.WriteString(r.output, s); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writef(format string, args ...any) error {
	return r.writeText(fmt.Sprintf(format, args...))
}
