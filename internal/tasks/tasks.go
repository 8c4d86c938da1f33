package tasks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/repteam/rep/internal/models"
	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

// RunLedger records data task runs. Implemented by repositories.TaskRunRepository.
type RunLedger interface {
	Create(run *models.TaskRun) error
	Update(run *models.TaskRun) error
}

// HandoffLedger records placement handoff reports. Implemented by repositories.HandoffRepository.
type HandoffLedger interface {
	Create(h *models.HandoffReport) error
}

// Deps lists the collaborators of an [Engine].
//
// Only Store is required. A nil service fails the operations that need it with
// [shared.ErrServiceUnavailable]; nil ledgers disable recording.
type Deps struct {
	Store      store.Store
	Billing    services.Billing
	Mailer     services.Mailer
	Identity   services.Identity
	Generator  services.Generator
	Locker     services.Locker
	Runs       RunLedger
	Handoffs   HandoffLedger
	Advisors   []services.Advisor
	HTTPClient *http.Client
	Logger     *log.Logger
	Config     *shared.Config
}

// Engine runs the event handlers, callable operations and data tasks of the backend.
type Engine struct {
	store      store.Store
	billing    services.Billing
	mailer     services.Mailer
	identity   services.Identity
	generator  services.Generator
	locker     services.Locker
	runs       RunLedger
	handoffs   HandoffLedger
	advisors   []services.Advisor
	httpClient *http.Client
	logger     *log.Logger
	config     *shared.Config
	now        func() time.Time
}

// TaskOptions are shared by every data task.
type TaskOptions struct {
	DryRun   bool                  // log intended writes and commit nothing
	Progress chan<- ProgressUpdate // optional, never blocks
}

// TaskResult summarises one data task run.
type TaskResult struct {
	Name      string         `json:"name"`
	DryRun    bool           `json:"dryRun"`
	Scanned   int            `json:"scanned"`
	Changed   int            `json:"changed"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Committed int            `json:"committed"`
	Counts    map[string]int `json:"counts,omitempty"` // task-specific counters
	RunID     string         `json:"runId,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

func (r *TaskResult) count(key string) {
	if r.Counts == nil {
		r.Counts = map[string]int{}
	}
	r.Counts[key]++
}

// NewEngine creates an Engine from deps, filling in a no-op locker, a discarding logger and the default config.
func NewEngine(deps Deps) *Engine {
	e := &Engine{
		store:      deps.Store,
		billing:    deps.Billing,
		mailer:     deps.Mailer,
		identity:   deps.Identity,
		generator:  deps.Generator,
		locker:     deps.Locker,
		runs:       deps.Runs,
		handoffs:   deps.Handoffs,
		advisors:   deps.Advisors,
		httpClient: deps.HTTPClient,
		logger:     deps.Logger,
		config:     deps.Config,
		now:        time.Now,
	}
	if e.locker == nil {
		e.locker = services.NoopLocker{}
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard)
	}
	if e.config == nil {
		e.config = shared.DefaultConfig()
	}
	return e
}

// SetClock overrides the engine's time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Config returns the engine's configuration.
func (e *Engine) Config() *shared.Config { return e.config }

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func unavailable(name string) error {
	return fmt.Errorf("%w: %s not configured", shared.ErrServiceUnavailable, name)
}

func (e *Engine) newBatcher(opts TaskOptions) *Batcher {
	return NewBatcher(e.store, BatcherOptions{
		Limit:      e.config.Tasks.BatchLimit,
		CommitRate: e.config.Tasks.CommitRate,
		DryRun:     opts.DryRun,
		Logger:     e.logger,
		Progress:   opts.Progress,
	})
}

// record runs fn as the named task and stores the outcome in the run ledger.
//
// Ledger failures are logged and never fail the task.
func (e *Engine) record(name string, opts TaskOptions, fn func(res *TaskResult) error) (*TaskResult, error) {
	res := &TaskResult{Name: name, DryRun: opts.DryRun}
	logger := e.logger.With("task", name, "dry_run", opts.DryRun)

	run := models.NewTaskRun(0, name, opts.DryRun)
	if e.runs != nil {
		if err := e.runs.Create(run); err != nil {
			logger.Warn("failed to record task run", "err", err)
		} else {
			res.RunID = run.ID()
		}
	}

	logger.Info("task started")
	err := fn(res)

	run.SetCounts(res.Scanned, res.Changed, res.Skipped, res.Failed)
	run.Finish(err)
	res.Duration = run.Duration()

	if e.runs != nil && res.RunID != "" {
		if uerr := e.runs.Update(run); uerr != nil {
			logger.Warn("failed to update task run", "err", uerr)
		}
	}

	if err != nil {
		logger.Error("task failed", "scanned", res.Scanned, "changed", res.Changed, "committed", res.Committed, "err", err)
		return res, err
	}

	logger.Info("task finished",
		"scanned", res.Scanned, "changed", res.Changed, "skipped", res.Skipped, "failed", res.Failed,
		"duration", res.Duration.Round(time.Millisecond))
	e.sendProgress(opts.Progress, completeUpdate(res))
	return res, nil
}

// scan loads a whole collection, honouring cancellation.
func (e *Engine) scan(ctx context.Context, collection string, opts TaskOptions, where ...store.Filter) ([]store.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs, err := e.store.Find(ctx, store.Query{Collection: collection, Where: where})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
	}
	e.sendProgress(opts.Progress, scanUpdate(collection, len(docs)))
	return docs, nil
}
