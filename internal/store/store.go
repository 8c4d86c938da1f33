// package store abstracts the document database behind a small interface
package store

import (
	"context"
	"strings"
	"time"

	"github.com/repteam/rep/internal/shared"
)

// ErrNotFound is returned by [Store.Get] and [Store.Update] when the document does not exist.
var ErrNotFound = shared.ErrNotFound

// Collection names used across the backend.
const (
	Users                  = "users"
	Contacts               = "contacts"
	Engagements            = "engagements"
	JobTargets             = "job_targets"
	JobPursuits            = "job_pursuits"
	FinancialSubscriptions = "financial_subscriptions"
	Applications           = "applications"
	Companies              = "companies"
	IntakeResponses        = "intake_responses"
	Opportunities          = "opportunities"
)

// Sentinel is a write-time placeholder resolved by the store.
type Sentinel int

const (
	// Delete removes the field it is assigned to.
	Delete Sentinel = iota + 1
	// ServerTimestamp is replaced with the commit time.
	ServerTimestamp
)

// Ref is a reference to another document, stored as a native reference value.
type Ref struct {
	Collection string
	ID         string
}

// Path returns the slash-separated document path, e.g. users/abc.
func (r Ref) Path() string { return r.Collection + "/" + r.ID }

// Filter is a single field predicate. Supported operators are "==" and "in".
type Filter struct {
	Path  string
	Op    string
	Value any
}

// Eq builds an equality [Filter].
func Eq(path string, v any) Filter { return Filter{Path: path, Op: "==", Value: v} }

// In builds a membership [Filter].
func In(path string, values ...any) Filter { return Filter{Path: path, Op: "in", Value: values} }

// Query selects documents from one collection. A zero Limit means no limit.
type Query struct {
	Collection string
	Where      []Filter
	Limit      int
}

// Store is the document database used by every task and handler.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Doc, error)             // Get fetches one document
	Find(ctx context.Context, q Query) ([]Doc, error)                        // Find runs q; no filters returns the whole collection
	Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error // Update applies dot-path field changes to an existing document
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	NewID(collection string) string // NewID allocates a document id without writing
	Batch() Batch                   // Batch starts a new atomic write batch
	Close() error
}

// Batch groups writes that commit atomically. A committed batch must not be reused.
type Batch interface {
	Set(collection, id string, data map[string]any, merge bool)
	Update(collection, id string, fields map[string]any)
	Delete(collection, id string)
	Len() int
	Commit(ctx context.Context) error
}

// Doc is a document snapshot.
type Doc struct {
	ID   string
	Data map[string]any
}

// Get resolves a dot-separated path such as "profile.email".
func (d Doc) Get(path string) any {
	return lookup(d.Data, path)
}

// Has reports whether path resolves to a non-nil value.
func (d Doc) Has(path string) bool {
	return d.Get(path) != nil
}

// String returns the value at path when it is a string.
func (d Doc) String(path string) string {
	s, _ := d.Get(path).(string)
	return s
}

// Bool returns the value at path when it is a bool.
func (d Doc) Bool(path string) bool {
	b, _ := d.Get(path).(bool)
	return b
}

// Number returns the value at path as a float64 for any numeric type.
func (d Doc) Number(path string) (float64, bool) {
	return toFloat(d.Get(path))
}

// Map returns the nested map at path, or nil.
func (d Doc) Map(path string) map[string]any {
	m, _ := d.Get(path).(map[string]any)
	return m
}

// Slice returns the array at path, or nil.
func (d Doc) Slice(path string) []any {
	switch v := d.Get(path).(type) {
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	}
	return nil
}

// Ref returns the reference at path. String paths like "users/abc" are accepted for legacy documents.
func (d Doc) Ref(path string) (Ref, bool) {
	switch v := d.Get(path).(type) {
	case Ref:
		return v, true
	case string:
		col, id, ok := strings.Cut(v, "/")
		if ok && col != "" && id != "" && !strings.Contains(id, "/") {
			return Ref{Collection: col, ID: id}, true
		}
	}
	return Ref{}, false
}

// Time returns the value at path when it is a timestamp or RFC 3339 string.
func (d Doc) Time(path string) (time.Time, bool) {
	switch v := d.Get(path).(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func lookup(data map[string]any, path string) any {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
