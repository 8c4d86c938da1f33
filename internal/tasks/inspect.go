package tasks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

// InspectRequest selects documents to read. A set ID reads a single document and ignores Where.
type InspectRequest struct {
	Collection string
	ID         string
	Where      []string // path=value expressions, see [ParseWhere]
	Limit      int
}

// Inspection is the result of [Engine.Inspect].
type Inspection struct {
	Collection string      `json:"collection"`
	Filters    []string    `json:"filters,omitempty"`
	Docs       []store.Doc `json:"docs"`
}

// ParseWhere parses "path=value" into an equality filter.
//
// true and false become booleans, numeric values become numbers and "ref:col/id" becomes a
// document reference. Anything else is compared as a string; quote it to force a string.
func ParseWhere(expr string) (store.Filter, error) {
	path, raw, ok := strings.Cut(expr, "=")
	path = strings.TrimSpace(path)
	if !ok || path == "" {
		return store.Filter{}, fmt.Errorf("%w: where %q must be path=value", shared.ErrInvalidFlag, expr)
	}
	return store.Eq(path, parseValue(strings.TrimSpace(raw))), nil
}

func parseValue(raw string) any {
	if unq, err := strconv.Unquote(raw); err == nil {
		return unq
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if ref, ok := strings.CutPrefix(raw, "ref:"); ok {
		if col, id, ok := strings.Cut(ref, "/"); ok && col != "" && id != "" {
			return store.Ref{Collection: col, ID: id}
		}
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

// Inspect reads one document or lists a collection for debugging.
func (e *Engine) Inspect(ctx context.Context, req InspectRequest) (*Inspection, error) {
	if req.Collection == "" {
		return nil, fmt.Errorf("%w: collection", shared.ErrMissingArgument)
	}
	out := &Inspection{Collection: req.Collection}

	if req.ID != "" {
		doc, err := e.store.Get(ctx, req.Collection, req.ID)
		if err != nil {
			return nil, err
		}
		out.Docs = []store.Doc{*doc}
		return out, nil
	}

	q := store.Query{Collection: req.Collection, Limit: req.Limit}
	for _, expr := range req.Where {
		f, err := ParseWhere(expr)
		if err != nil {
			return nil, err
		}
		q.Where = append(q.Where, f)
		out.Filters = append(out.Filters, expr)
	}

	docs, err := e.store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", req.Collection, err)
	}
	out.Docs = docs
	e.logger.Debug("inspected collection", "collection", req.Collection, "docs", len(docs), "filters", len(q.Where))
	return out, nil
}
