package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Scan Phase = iota
	Resolve
	Write
	Commit
	Send
	Complete
)

func (p Phase) String() string {
	switch p {
	case Scan:
		return "scan"
	case Resolve:
		return "resolve"
	case Write:
		return "write"
	case Commit:
		return "commit"
	case Send:
		return "send"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

// Fraction reports progress within the phase, 0 when Total is unknown.
func (u ProgressUpdate) Fraction() float64 {
	if u.Total <= 0 {
		return 0
	}
	return float64(u.Step) / float64(u.Total)
}

func scanUpdate(collection string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Scan,
		Step:    count,
		Total:   count,
		Message: fmt.Sprintf("Scanned %d documents in %s", count, collection),
	}
}

func documentUpdate(step, total int, collection, id, action string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Write,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s/%s", step, total, action, collection, id),
	}
}

func resolveUpdate(step, total int, id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Resolve,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Resolved %s", step, total, id),
	}
}

func commitUpdate(committed, pending int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Commit,
		Step:    committed,
		Total:   committed + pending,
		Message: fmt.Sprintf("Committed %d writes", committed),
	}
}

func completeUpdate(result *TaskResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    result.Scanned,
		Total:   result.Scanned,
		Message: fmt.Sprintf("%s: %d changed, %d skipped, %d failed", result.Name, result.Changed, result.Skipped, result.Failed),
		Data:    result,
	}
}
