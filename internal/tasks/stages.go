package tasks

import (
	"context"
	"fmt"

	"github.com/repteam/rep/internal/store"
)

// StageMapping maps legacy pursuit statuses onto pipeline stage ids.
var StageMapping = map[string]string{
	"target_locked":      "target_locked",
	"outreach":           "outreach_execution",
	"outreach_execution": "outreach_execution",
	"engagement":         "engagement",
	"interviewing":       "interview_loop",
	"interview_loop":     "interview_loop",
	"offer":              "offer_pending",
	"offer_pending":      "offer_pending",
	"negotiating":        "offer_pending",
	"placed":             "placed",
	"closed_lost":        "closed_lost",
	"closed_by_market":   "closed_by_market",
}

// StageFor returns the stage id for a legacy status. Unknown statuses map to themselves.
func StageFor(status string) string {
	if stage, ok := StageMapping[status]; ok {
		return stage
	}
	return status
}

// MigrateStatusToStageID replaces the legacy status field of every job pursuit with a stageId.
//
// Any status value is migrated, numbers and booleans by their text. Pursuits with an empty or
// missing status are left alone, whether or not they already have a stageId.
func (e *Engine) MigrateStatusToStageID(ctx context.Context, opts TaskOptions) (*TaskResult, error) {
	return e.record("migrate-stages", opts, func(res *TaskResult) error {
		docs, err := e.scan(ctx, store.JobPursuits, opts)
		if err != nil {
			return err
		}
		res.Scanned = len(docs)

		b := e.newBatcher(opts)
		defer func() { res.Committed = b.Committed() }()

		for i, doc := range docs {
			status := statusText(doc.Get("status"))
			if status == "" {
				res.Skipped++
				continue
			}

			stage := StageFor(status)
			if _, mapped := StageMapping[status]; !mapped {
				res.count("unmapped")
				e.logger.Warn("unmapped status kept as stage", "pursuit", doc.ID, "status", status)
			}

			if err := b.Update(ctx, store.JobPursuits, doc.ID, map[string]any{
				"stageId": stage,
				"status":  store.Delete,
			}); err != nil {
				return err
			}
			res.Changed++
			e.sendProgress(opts.Progress, documentUpdate(i+1, len(docs), store.JobPursuits, doc.ID, "stage "+stage))
		}

		return b.Flush(ctx)
	})
}

func statusText(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
