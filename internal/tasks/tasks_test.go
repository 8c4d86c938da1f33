package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/repteam/rep/internal/models"
	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRuns struct {
	created []*models.TaskRun
	updated []*models.TaskRun
	err     error
}

func (f *fakeRuns) Create(run *models.TaskRun) error {
	if f.err != nil {
		return f.err
	}
	run.SetID(fmt.Sprintf("run-%d", len(f.created)+1))
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRuns) Update(run *models.TaskRun) error {
	f.updated = append(f.updated, run)
	return nil
}

type fakeHandoffs struct {
	reports []*models.HandoffReport
}

func (f *fakeHandoffs) Create(h *models.HandoffReport) error {
	f.reports = append(f.reports, h)
	return nil
}

func newTestEngine(mem *store.Memory, deps Deps) *Engine {
	deps.Store = mem
	e := NewEngine(deps)
	e.SetClock(func() time.Time { return fixedNow })
	mem.SetClock(func() time.Time { return fixedNow })
	return e
}

func TestBatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("Commits At Limit And Starts A Fresh Batch", func(t *testing.T) {
		mem := store.NewMemory()
		b := NewBatcher(mem, BatcherOptions{Limit: 3})

		for i := range 7 {
			if err := b.Set(ctx, "things", fmt.Sprintf("t%d", i), map[string]any{"n": i}, false); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
		}
		if b.Commits() != 2 {
			t.Errorf("Commits() before flush = %d, want 2", b.Commits())
		}
		if err := b.Flush(ctx); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}

		if b.Committed() != 7 {
			t.Errorf("Committed() = %d, want 7", b.Committed())
		}
		if b.Commits() != 3 {
			t.Errorf("Commits() = %d, want 3", b.Commits())
		}
		if mem.Commits() != 3 {
			t.Errorf("store commits = %d, want 3", mem.Commits())
		}
		if mem.Count("things") != 7 {
			t.Errorf("documents = %d, want 7", mem.Count("things"))
		}
	})

	t.Run("Default Limit Is 400", func(t *testing.T) {
		mem := store.NewMemory()
		var sizes []int
		mem.CommitHook = func(ops int) error {
			sizes = append(sizes, ops)
			return nil
		}
		b := NewBatcher(mem, BatcherOptions{Limit: 1000})

		for i := range 401 {
			if err := b.Set(ctx, "things", fmt.Sprintf("t%d", i), map[string]any{}, false); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
		}
		if err := b.Flush(ctx); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}

		if len(sizes) != 2 || sizes[0] != 400 || sizes[1] != 1 {
			t.Errorf("batch sizes = %v, want [400 1]", sizes)
		}
	})

	t.Run("Dry Run Commits Nothing", func(t *testing.T) {
		mem := store.NewMemory()
		mem.Seed("things", "a", map[string]any{"n": 1})
		b := NewBatcher(mem, BatcherOptions{DryRun: true})

		_ = b.Update(ctx, "things", "a", map[string]any{"n": 2})
		_ = b.Delete(ctx, "things", "a")
		if err := b.Flush(ctx); err != nil {
			t.Fatalf("Flush() error = %v", err)
		}

		if b.Planned() != 2 {
			t.Errorf("Planned() = %d, want 2", b.Planned())
		}
		if b.Committed() != 0 || mem.Commits() != 0 {
			t.Errorf("dry run committed %d writes in %d commits", b.Committed(), mem.Commits())
		}
		if mem.Doc("things", "a")["n"] != 1 {
			t.Error("dry run changed the document")
		}
	})

	t.Run("Failed Commit Reports Committed Count", func(t *testing.T) {
		mem := store.NewMemory()
		calls := 0
		mem.CommitHook = func(ops int) error {
			calls++
			if calls == 2 {
				return errors.New("deadline exceeded")
			}
			return nil
		}
		b := NewBatcher(mem, BatcherOptions{Limit: 2})

		var err error
		for i := range 5 {
			if err = b.Set(ctx, "things", fmt.Sprintf("t%d", i), map[string]any{}, false); err != nil {
				break
			}
		}

		if !errors.Is(err, shared.ErrBatchCommit) {
			t.Fatalf("error = %v, want ErrBatchCommit", err)
		}
		if b.Committed() != 2 {
			t.Errorf("Committed() = %d, want 2", b.Committed())
		}
		if err := b.Set(ctx, "things", "later", map[string]any{}, false); !errors.Is(err, shared.ErrBatchCommit) {
			t.Errorf("write after failure error = %v, want the sticky commit error", err)
		}
	})

	t.Run("Cancelled Context Stops Writes", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		b := NewBatcher(store.NewMemory(), BatcherOptions{})

		if err := b.Set(cctx, "things", "a", map[string]any{}, false); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}

func TestEngine_Record(t *testing.T) {
	t.Run("Records A Successful Run", func(t *testing.T) {
		runs := &fakeRuns{}
		e := newTestEngine(store.NewMemory(), Deps{Runs: runs})

		res, err := e.record("demo", TaskOptions{DryRun: true}, func(res *TaskResult) error {
			res.Scanned, res.Changed, res.Skipped = 3, 2, 1
			return nil
		})
		if err != nil {
			t.Fatalf("record() error = %v", err)
		}

		if res.RunID != "run-1" {
			t.Errorf("RunID = %q, want run-1", res.RunID)
		}
		if len(runs.updated) != 1 {
			t.Fatalf("ledger updates = %d, want 1", len(runs.updated))
		}
		run := runs.updated[0]
		if run.Status() != models.RunSucceeded || !run.DryRun() || run.Scanned() != 3 || run.Changed() != 2 || run.Skipped() != 1 {
			t.Errorf("run = %s dry=%v %d/%d/%d", run.Status(), run.DryRun(), run.Scanned(), run.Changed(), run.Skipped())
		}
	})

	t.Run("Records A Failed Run", func(t *testing.T) {
		runs := &fakeRuns{}
		e := newTestEngine(store.NewMemory(), Deps{Runs: runs})

		_, err := e.record("demo", TaskOptions{}, func(res *TaskResult) error {
			return errors.New("boom")
		})
		if err == nil {
			t.Fatal("record() expected error")
		}
		if runs.updated[0].Status() != models.RunFailed || runs.updated[0].ErrorMessage() != "boom" {
			t.Errorf("run status = %s error = %q", runs.updated[0].Status(), runs.updated[0].ErrorMessage())
		}
	})

	t.Run("Ledger Failure Does Not Fail The Task", func(t *testing.T) {
		e := newTestEngine(store.NewMemory(), Deps{Runs: &fakeRuns{err: errors.New("disk full")}})

		res, err := e.record("demo", TaskOptions{}, func(res *TaskResult) error { return nil })
		if err != nil {
			t.Fatalf("record() error = %v", err)
		}
		if res.RunID != "" {
			t.Errorf("RunID = %q, want empty", res.RunID)
		}
	})
}

func TestProgressUpdate_NonBlocking(t *testing.T) {
	mem := store.NewMemory()
	for i := range 5 {
		mem.Seed(store.JobPursuits, fmt.Sprintf("p%d", i), map[string]any{"status": "outreach"})
	}
	e := newTestEngine(mem, Deps{})

	// unbuffered and never read
	progress := make(chan ProgressUpdate)

	done := make(chan error, 1)
	go func() {
		_, err := e.MigrateStatusToStageID(context.Background(), TaskOptions{Progress: progress})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("MigrateStatusToStageID() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("task blocked on progress sends")
	}
}

func TestProgressUpdate_Fraction(t *testing.T) {
	tests := []struct {
		name   string
		update ProgressUpdate
		want   float64
	}{
		{name: "Half Way", update: ProgressUpdate{Step: 2, Total: 4}, want: 0.5},
		{name: "Unknown Total", update: ProgressUpdate{Step: 2}, want: 0},
		{name: "Done", update: ProgressUpdate{Step: 3, Total: 3}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.update.Fraction(); got != tt.want {
				t.Errorf("Fraction() = %v, want %v", got, tt.want)
			}
		})
	}
}
