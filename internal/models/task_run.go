package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// TaskRun records one execution of a data task.
type TaskRun struct {
	timestamps
	name         string
	dryRun       bool
	status       string
	scanned      int
	changed      int
	skipped      int
	failed       int
	errorMessage string
	startedAt    time.Time
	completedAt  *time.Time
}

// NewTaskRun creates a running task record started now.
func NewTaskRun(sequence int, name string, dryRun bool) *TaskRun {
	r := &TaskRun{timestamps: newTimestamps(sequence), name: name, dryRun: dryRun, status: RunRunning}
	r.startedAt = r.createdAt
	return r
}

func (r *TaskRun) Name() string            { return r.name }
func (r *TaskRun) DryRun() bool            { return r.dryRun }
func (r *TaskRun) Status() string          { return r.status }
func (r *TaskRun) Scanned() int            { return r.scanned }
func (r *TaskRun) Changed() int            { return r.changed }
func (r *TaskRun) Skipped() int            { return r.skipped }
func (r *TaskRun) Failed() int             { return r.failed }
func (r *TaskRun) ErrorMessage() string    { return r.errorMessage }
func (r *TaskRun) StartedAt() time.Time    { return r.startedAt }
func (r *TaskRun) CompletedAt() *time.Time { return r.completedAt }

func (r *TaskRun) SetStatus(status string)     { r.status = status }
func (r *TaskRun) SetErrorMessage(msg string)  { r.errorMessage = msg }
func (r *TaskRun) SetStartedAt(t time.Time)    { r.startedAt = t }
func (r *TaskRun) SetCompletedAt(t *time.Time) { r.completedAt = t }
func (r *TaskRun) SetCounts(scanned, changed, skipped, failed int) {
	r.scanned, r.changed, r.skipped, r.failed = scanned, changed, skipped, failed
}

// Finish marks the run complete. A non-nil err marks it failed.
func (r *TaskRun) Finish(err error) {
	now := time.Now()
	r.completedAt = &now
	if err != nil {
		r.status = RunFailed
		r.errorMessage = err.Error()
		return
	}
	r.status = RunSucceeded
}

// Duration reports how long the run took, or has taken so far.
func (r *TaskRun) Duration() time.Duration {
	if r.completedAt == nil {
		return time.Since(r.startedAt)
	}
	return r.completedAt.Sub(r.startedAt)
}

func (r *TaskRun) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string     `json:"id,omitempty"`
		Name        string     `json:"name"`
		DryRun      bool       `json:"dryRun"`
		Status      string     `json:"status"`
		Scanned     int        `json:"scanned"`
		Changed     int        `json:"changed"`
		Skipped     int        `json:"skipped"`
		Failed      int        `json:"failed"`
		Error       string     `json:"error,omitempty"`
		StartedAt   time.Time  `json:"startedAt"`
		CompletedAt *time.Time `json:"completedAt,omitempty"`
	}{
		ID:          r.id,
		Name:        r.name,
		DryRun:      r.dryRun,
		Status:      r.status,
		Scanned:     r.scanned,
		Changed:     r.changed,
		Skipped:     r.skipped,
		Failed:      r.failed,
		Error:       r.errorMessage,
		StartedAt:   r.startedAt,
		CompletedAt: r.completedAt,
	})
}

func (r *TaskRun) Validate() error {
	if r.name == "" {
		return fmt.Errorf("task name is required")
	}
	switch r.status {
	case RunRunning, RunSucceeded, RunFailed:
	default:
		return fmt.Errorf("invalid task run status: %q", r.status)
	}
	if r.scanned < 0 || r.changed < 0 || r.skipped < 0 || r.failed < 0 {
		return fmt.Errorf("task run counts must not be negative")
	}
	return nil
}
