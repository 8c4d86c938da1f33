package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

const unknownUser = "unknown_user"

// MigrateOpportunities splits every legacy opportunity into a job target and, when it was
// linked to a client, a job pursuit of that target.
//
// The legacy documents are kept; [Engine.DeleteLegacyOpportunities] removes them afterwards.
func (e *Engine) MigrateOpportunities(ctx context.Context, opts TaskOptions) (*TaskResult, error) {
	return e.record("migrate-opportunities", opts, func(res *TaskResult) error {
		docs, err := e.scan(ctx, store.Opportunities, opts)
		if err != nil {
			return err
		}
		res.Scanned = len(docs)

		b := e.newBatcher(opts)
		defer func() { res.Committed = b.Committed() }()

		for i, opp := range docs {
			now := e.now().UTC().Format(time.RFC3339)
			createdAt := opp.Get("createdAt")
			if createdAt == nil {
				createdAt = now
			}
			financials := opp.Map("financials")
			if financials == nil {
				financials = map[string]any{}
			}

			targetID := e.store.NewID(store.JobTargets)
			if err := b.Set(ctx, store.JobTargets, targetID, map[string]any{
				"company":    shared.FirstNonEmpty(opp.String("company"), "Unknown Company"),
				"role":       shared.FirstNonEmpty(opp.String("role"), "Unknown Role"),
				"financials": financials,
				"status":     "OPEN",
				"source":     shared.FirstNonEmpty(opp.String("source"), "manual"),
				"createdAt":  createdAt,
				"legacyIds":  []any{opp.ID},
			}, false); err != nil {
				return err
			}
			res.count("targets")

			linkID := shared.FirstNonEmpty(opp.String("userId"), opp.String("engagementId"))
			if linkID == "" {
				res.Changed++
				continue
			}

			engagementID, userID, err := e.resolveLink(ctx, linkID)
			if err != nil {
				e.logger.Warn("failed to resolve opportunity link", "opportunity", opp.ID, "link", linkID, "err", err)
				res.Failed++
				continue
			}

			pursuit := map[string]any{
				"targetId":     targetID,
				"userId":       userID,
				"engagementId": nil,
				"company":      opp.Get("company"),
				"role":         opp.Get("role"),
				"status":       shared.FirstNonEmpty(opp.String("status"), "outreach"),
				"stage_detail": opp.String("stage_detail"),
				"createdAt":    createdAt,
				"updatedAt":    now,
				"financials":   financials,
			}
			if engagementID != "" {
				pursuit["engagementId"] = engagementID
			}

			if err := b.Set(ctx, store.JobPursuits, e.store.NewID(store.JobPursuits), pursuit, false); err != nil {
				return err
			}
			res.count("pursuits")
			res.Changed++
			e.sendProgress(opts.Progress, documentUpdate(i+1, len(docs), store.Opportunities, opp.ID, "migrated"))
		}
		return b.Flush(ctx)
	})
}

// resolveLink treats linkID as an engagement id when such an engagement exists. The user is
// the engagement's userId, then its contact's userId, then linkID itself.
func (e *Engine) resolveLink(ctx context.Context, linkID string) (engagementID, userID string, err error) {
	userID = linkID

	eng, err := e.store.Get(ctx, store.Engagements, linkID)
	if errors.Is(err, shared.ErrNotFound) {
		return "", userID, nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to read engagement %s: %w", linkID, err)
	}
	engagementID = linkID

	if uid := eng.String("userId"); uid != "" {
		return engagementID, uid, nil
	}
	if contactID := eng.String("contactId"); contactID != "" {
		contact, err := e.store.Get(ctx, store.Contacts, contactID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return "", "", fmt.Errorf("failed to read contact %s: %w", contactID, err)
		}
		if contact != nil && contact.String("userId") != "" {
			return engagementID, contact.String("userId"), nil
		}
	}
	return engagementID, shared.FirstNonEmpty(userID, unknownUser), nil
}

// DeleteLegacyOpportunities deletes every document in the legacy opportunities collection.
func (e *Engine) DeleteLegacyOpportunities(ctx context.Context, opts TaskOptions) (*TaskResult, error) {
	return e.record("delete-opportunities", opts, func(res *TaskResult) error {
		docs, err := e.scan(ctx, store.Opportunities, opts)
		if err != nil {
			return err
		}
		res.Scanned = len(docs)

		b := e.newBatcher(opts)
		defer func() { res.Committed = b.Committed() }()

		for i, doc := range docs {
			if err := b.Delete(ctx, store.Opportunities, doc.ID); err != nil {
				return err
			}
			res.Changed++
			e.sendProgress(opts.Progress, documentUpdate(i+1, len(docs), store.Opportunities, doc.ID, "deleted"))
		}
		return b.Flush(ctx)
	})
}
