package tasks

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

// DefaultBatchLimit is the number of writes per committed batch. Firestore allows 500.
const DefaultBatchLimit = 400

// BatcherOptions configures a [Batcher].
type BatcherOptions struct {
	Limit      int     // writes per batch, defaults to [DefaultBatchLimit]
	CommitRate float64 // commits per second, zero means unlimited
	DryRun     bool
	Logger     *log.Logger
	Progress   chan<- ProgressUpdate
}

// Batcher queues writes and commits them in batches of at most Limit operations.
//
// A fresh store batch is started after every commit. A failed commit stops the batcher and
// the error reports how many writes were already committed; earlier batches are not undone.
type Batcher struct {
	store    store.Store
	limit    int
	limiter  *rate.Limiter
	dryRun   bool
	logger   *log.Logger
	progress chan<- ProgressUpdate

	batch     store.Batch
	pending   int
	committed int
	commits   int
	planned   int
	err       error
}

// NewBatcher creates a Batcher writing to s.
func NewBatcher(s store.Store, opts BatcherOptions) *Batcher {
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = DefaultBatchLimit
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.CommitRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.CommitRate), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Batcher{
		store:    s,
		limit:    limit,
		limiter:  limiter,
		dryRun:   opts.DryRun,
		logger:   logger,
		progress: opts.Progress,
	}
}

// Set queues a full or merged document write.
func (b *Batcher) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	return b.add(ctx, "set", collection, id, func(batch store.Batch) { batch.Set(collection, id, data, merge) }, data)
}

// Update queues a field update on an existing document.
func (b *Batcher) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return b.add(ctx, "update", collection, id, func(batch store.Batch) { batch.Update(collection, id, fields) }, fields)
}

// Delete queues a document deletion.
func (b *Batcher) Delete(ctx context.Context, collection, id string) error {
	return b.add(ctx, "delete", collection, id, func(batch store.Batch) { batch.Delete(collection, id) }, nil)
}

func (b *Batcher) add(ctx context.Context, kind, collection, id string, apply func(store.Batch), data map[string]any) error {
	if b.err != nil {
		return b.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if b.dryRun {
		b.planned++
		b.logger.Info("dry run: would write", "op", kind, "doc", collection+"/"+id, "data", data)
		return nil
	}

	if b.batch == nil {
		b.batch = b.store.Batch()
	}
	apply(b.batch)
	b.pending++
	b.planned++

	if b.pending >= b.limit {
		return b.Flush(ctx)
	}
	return nil
}

// Flush commits any queued writes.
func (b *Batcher) Flush(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if b.pending == 0 {
		return nil
	}

	if err := b.limiter.Wait(ctx); err != nil {
		b.err = fmt.Errorf("%w: %d writes committed before cancellation: %w", shared.ErrBatchCommit, b.committed, err)
		return b.err
	}

	if err := b.batch.Commit(ctx); err != nil {
		b.err = fmt.Errorf("%w: %d writes committed, %d lost in failed batch: %w", shared.ErrBatchCommit, b.committed, b.pending, err)
		return b.err
	}

	b.committed += b.pending
	b.commits++
	b.logger.Debug("batch committed", "ops", b.pending, "total", b.committed)
	b.pending = 0
	b.batch = nil

	select {
	case b.progress <- commitUpdate(b.committed, 0):
	default:
	}
	return nil
}

// Committed returns the number of writes committed so far.
func (b *Batcher) Committed() int { return b.committed }

// Commits returns the number of batches committed so far.
func (b *Batcher) Commits() int { return b.commits }

// Planned returns the number of writes queued, including dry-run writes.
func (b *Batcher) Planned() int { return b.planned }
