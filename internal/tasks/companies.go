package tasks

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

// CompanyKey is the grouping key of a company name. A missing name groups as "unknown".
func CompanyKey(name string) string {
	return shared.NormalizeKey(shared.FirstNonEmpty(name, "Unknown"))
}

// PickWinner orders a duplicate group so the company to keep comes first: most locations,
// then earliest createdAt.
func PickWinner(group []store.Doc) []store.Doc {
	out := slices.Clone(group)
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := len(out[i].Slice("locations")), len(out[j].Slice("locations"))
		if li != lj {
			return li > lj
		}
		return createdBefore(out[i], out[j])
	})
	return out
}

func createdBefore(a, b store.Doc) bool {
	ta, oka := a.Time("createdAt")
	tb, okb := b.Time("createdAt")
	switch {
	case oka && okb:
		return ta.Before(tb)
	case oka != okb:
		return oka
	}
	return a.String("createdAt") < b.String("createdAt")
}

// MergeLocations appends the loser locations whose id the winner does not have yet.
func MergeLocations(winner store.Doc, losers []store.Doc) []any {
	merged := slices.Clone(winner.Slice("locations"))
	seen := map[any]bool{}
	for _, loc := range merged {
		seen[locationID(loc)] = true
	}
	for _, loser := range losers {
		for _, loc := range loser.Slice("locations") {
			id := locationID(loc)
			if seen[id] {
				continue
			}
			seen[id] = true
			merged = append(merged, loc)
		}
	}
	if merged == nil {
		merged = []any{}
	}
	return merged
}

func locationID(loc any) any {
	if m, ok := loc.(map[string]any); ok {
		return m["id"]
	}
	return loc
}

// DedupeCompanies merges companies that share a normalised name.
//
// Contacts and job pursuits pointing at a duplicate are moved to the kept company before the
// duplicate is deleted.
func (e *Engine) DedupeCompanies(ctx context.Context, opts TaskOptions) (*TaskResult, error) {
	return e.record("dedupe-companies", opts, func(res *TaskResult) error {
		docs, err := e.scan(ctx, store.Companies, opts)
		if err != nil {
			return err
		}
		res.Scanned = len(docs)

		groups := map[string][]store.Doc{}
		for _, doc := range docs {
			key := CompanyKey(doc.String("name"))
			groups[key] = append(groups[key], doc)
		}

		keys := make([]string, 0, len(groups))
		for key, group := range groups {
			if len(group) > 1 {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		e.logger.Info("found duplicate company groups", "groups", len(keys))

		b := e.newBatcher(opts)
		defer func() { res.Committed = b.Committed() }()

		for i, key := range keys {
			ordered := PickWinner(groups[key])
			winner, losers := ordered[0], ordered[1:]
			winnerName := winner.String("name")
			e.logger.Info("merging company group", "name", key, "winner", winner.ID, "duplicates", len(losers))

			if err := b.Update(ctx, store.Companies, winner.ID, map[string]any{
				"locations":  MergeLocations(winner, losers),
				"name_lower": CompanyKey(winnerName),
			}); err != nil {
				return err
			}

			for _, loser := range losers {
				if err := e.remapCompany(ctx, b, res, loser.ID, winner.ID, winnerName); err != nil {
					return err
				}
				if err := b.Delete(ctx, store.Companies, loser.ID); err != nil {
					return err
				}
				res.count("deleted")
			}

			res.Changed++
			e.sendProgress(opts.Progress, documentUpdate(i+1, len(keys), store.Companies, winner.ID, "merged into"))
		}
		res.Skipped = len(groups) - len(keys)

		return b.Flush(ctx)
	})
}

func (e *Engine) remapCompany(ctx context.Context, b *Batcher, res *TaskResult, from, to, name string) error {
	contacts, err := e.store.Find(ctx, store.Query{Collection: store.Contacts, Where: []store.Filter{store.Eq("companyId", from)}})
	if err != nil {
		return fmt.Errorf("failed to find contacts of %s: %w", from, err)
	}
	for _, c := range contacts {
		if err := b.Update(ctx, store.Contacts, c.ID, map[string]any{"companyId": to}); err != nil {
			return err
		}
		res.count("contacts")
	}

	pursuits, err := e.store.Find(ctx, store.Query{Collection: store.JobPursuits, Where: []store.Filter{store.Eq("companyId", from)}})
	if err != nil {
		return fmt.Errorf("failed to find pursuits of %s: %w", from, err)
	}
	for _, p := range pursuits {
		if err := b.Update(ctx, store.JobPursuits, p.ID, map[string]any{"companyId": to, "company": name}); err != nil {
			return err
		}
		res.count("pursuits")
	}
	return nil
}

// BackfillCompanies sets name_lower on every company where it is missing or stale.
func (e *Engine) BackfillCompanies(ctx context.Context, opts TaskOptions) (*TaskResult, error) {
	return e.record("backfill-companies", opts, func(res *TaskResult) error {
		docs, err := e.scan(ctx, store.Companies, opts)
		if err != nil {
			return err
		}
		res.Scanned = len(docs)

		b := e.newBatcher(opts)
		defer func() { res.Committed = b.Committed() }()

		for i, doc := range docs {
			expected := strings.ToLower(strings.TrimSpace(doc.String("name")))
			if current := doc.String("name_lower"); current != "" && current == expected {
				res.Skipped++
				continue
			}
			if err := b.Update(ctx, store.Companies, doc.ID, map[string]any{"name_lower": expected}); err != nil {
				return err
			}
			res.Changed++
			e.sendProgress(opts.Progress, documentUpdate(i+1, len(docs), store.Companies, doc.ID, "name_lower="+expected))
		}
		return b.Flush(ctx)
	})
}
