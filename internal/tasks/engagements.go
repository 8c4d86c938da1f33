package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

const (
	lookupWorkers = 5
	lookupRate    = 50.0 // contact reads per second
)

// LinkedEngagementStatuses are the engagement statuses an orphaned pursuit may be linked to.
var LinkedEngagementStatuses = []any{"active", "searching", "negotiating", "placed"}

type contactLookup struct {
	engagementID string
	contactID    string
}

type lookupResult struct {
	engagementID string
	contactID    string
	userID       string
	reason       string
	err          error
}

// FixEngagementUserIDs fills in the userId of engagements that lack one by following their
// contactId to the contact's userId.
//
// Contacts are read by a small worker pool; writes are made by the caller goroutine only.
func (e *Engine) FixEngagementUserIDs(ctx context.Context, opts TaskOptions) (*TaskResult, error) {
	return e.record("fix-engagement-users", opts, func(res *TaskResult) error {
		docs, err := e.scan(ctx, store.Engagements, opts)
		if err != nil {
			return err
		}
		res.Scanned = len(docs)

		var jobs []contactLookup
		for _, doc := range docs {
			if doc.String("userId") != "" {
				res.Skipped++
				continue
			}
			contactID := doc.String("contactId")
			if contactID == "" {
				e.logger.Warn("engagement has no contactId", "engagement", doc.ID)
				res.Failed++
				res.count("no_contact_id")
				continue
			}
			jobs = append(jobs, contactLookup{engagementID: doc.ID, contactID: contactID})
		}

		results, err := e.lookupContacts(ctx, opts, jobs)
		if err != nil {
			return err
		}

		b := e.newBatcher(opts)
		defer func() { res.Committed = b.Committed() }()

		for i, r := range results {
			if r.err != nil {
				return fmt.Errorf("failed to read contact %s: %w", r.contactID, r.err)
			}
			if r.userID == "" {
				e.logger.Warn("engagement cannot be fixed", "engagement", r.engagementID, "contact", r.contactID, "reason", r.reason)
				res.Failed++
				res.count(r.reason)
				continue
			}
			if err := b.Update(ctx, store.Engagements, r.engagementID, map[string]any{"userId": r.userID}); err != nil {
				return err
			}
			res.Changed++
			e.sendProgress(opts.Progress, documentUpdate(i+1, len(results), store.Engagements, r.engagementID, "userId="+r.userID))
		}
		return b.Flush(ctx)
	})
}

// lookupContacts resolves jobs concurrently and returns the results ordered by engagement id.
func (e *Engine) lookupContacts(ctx context.Context, opts TaskOptions, lookups []contactLookup) ([]lookupResult, error) {
	limiter := rate.NewLimiter(rate.Limit(lookupRate), lookupWorkers)

	jobs := make(chan contactLookup, len(lookups))
	results := make(chan lookupResult, len(lookups))

	var wg sync.WaitGroup
	for i := 0; i < lookupWorkers; i++ {
		wg.Add(1)
		go e.contactWorker(ctx, &wg, limiter, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, job := range lookups {
			select {
			case <-ctx.Done():
				return
			case jobs <- job:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]lookupResult, 0, len(lookups))
	for r := range results {
		out = append(out, r)
		e.sendProgress(opts.Progress, resolveUpdate(len(out), len(lookups), r.engagementID))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].engagementID < out[j].engagementID })
	return out, nil
}

// contactWorker reads the contact of each engagement from the jobs channel.
func (e *Engine) contactWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	limiter *rate.Limiter,
	jobs <-chan contactLookup,
	results chan<- lookupResult,
) {
	defer wg.Done()

	for job := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		r := lookupResult{engagementID: job.engagementID, contactID: job.contactID}
		contact, err := e.store.Get(ctx, store.Contacts, job.contactID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			r.reason = "contact_not_found"
		case err != nil:
			r.err = err
		default:
			r.userID = contact.String("userId")
			if r.userID == "" {
				r.reason = "contact_without_user"
			}
		}
		results <- r
	}
}

// FixOrphanedPursuits links pursuits with an empty or "orphaned" engagementId to their
// user's live engagement.
func (e *Engine) FixOrphanedPursuits(ctx context.Context, opts TaskOptions) (*TaskResult, error) {
	return e.record("fix-orphaned-pursuits", opts, func(res *TaskResult) error {
		docs, err := e.scan(ctx, store.JobPursuits, opts)
		if err != nil {
			return err
		}
		res.Scanned = len(docs)

		b := e.newBatcher(opts)
		defer func() { res.Committed = b.Committed() }()

		cache := map[string]string{}
		for i, doc := range docs {
			if id := doc.String("engagementId"); id != "" && id != "orphaned" {
				res.Skipped++
				continue
			}

			userID := doc.String("userId")
			if userID == "" {
				e.logger.Warn("orphaned pursuit has no userId", "pursuit", doc.ID)
				res.Skipped++
				res.count("no_user")
				continue
			}

			engagementID, ok := cache[userID]
			if !ok {
				found, err := e.store.Find(ctx, store.Query{
					Collection: store.Engagements,
					Where: []store.Filter{
						store.Eq("userId", userID),
						store.In("status", LinkedEngagementStatuses...),
					},
					Limit: 1,
				})
				if err != nil {
					return fmt.Errorf("failed to find engagement for %s: %w", userID, err)
				}
				if len(found) > 0 {
					engagementID = found[0].ID
				}
				cache[userID] = engagementID
			}
			if engagementID == "" {
				e.logger.Warn("no live engagement for user", "user", userID, "pursuit", doc.ID)
				res.Skipped++
				res.count("no_engagement")
				continue
			}

			if err := b.Update(ctx, store.JobPursuits, doc.ID, map[string]any{"engagementId": engagementID}); err != nil {
				return err
			}
			res.Changed++
			e.sendProgress(opts.Progress, documentUpdate(i+1, len(docs), store.JobPursuits, doc.ID, "linked to "+engagementID))
		}
		return b.Flush(ctx)
	})
}
