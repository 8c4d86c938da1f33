package store

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process [Store] used by tests and --memory dev runs.
//
// Values are deep-copied on the way in and out, sentinels are resolved on write,
// and a batch is applied under a single lock so it commits atomically.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]map[string]map[string]any
	now     func() time.Time
	commits int

	// CommitHook, when set, runs before each batch commit. A non-nil error aborts the commit.
	CommitHook func(ops int) error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: map[string]map[string]map[string]any{}, now: time.Now}
}

// SetClock replaces the time source used for [ServerTimestamp].
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

// Seed writes a document directly, bypassing sentinels.
func (m *Memory) Seed(collection, id string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collection(collection)[id] = deepCopy(data).(map[string]any)
}

// Doc returns a copy of a stored document, or nil.
func (m *Memory) Doc(collection, id string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[collection][id]
	if !ok {
		return nil
	}
	return deepCopy(d).(map[string]any)
}

// Count returns the number of documents in collection.
func (m *Memory) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[collection])
}

// Commits returns how many batches have been committed.
func (m *Memory) Commits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commits
}

func (m *Memory) Get(ctx context.Context, collection, id string) (*Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return &Doc{ID: id, Data: deepCopy(d).(map[string]any)}, nil
}

func (m *Memory) Find(ctx context.Context, q Query) ([]Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col := m.data[q.Collection]
	ids := slices.Sorted(maps.Keys(col))

	var docs []Doc
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc := Doc{ID: id, Data: col[id]}
		if !matches(doc, q.Where) {
			continue
		}
		docs = append(docs, Doc{ID: id, Data: deepCopy(col[id]).(map[string]any)})
		if q.Limit > 0 && len(docs) == q.Limit {
			break
		}
	}
	return docs, nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(collection, id, data, merge)
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(collection, id, fields)
}

func (m *Memory) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := m.NewID(collection)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(collection, id, data, false)
	return id, nil
}

func (m *Memory) NewID(collection string) string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:20]
}

func (m *Memory) Batch() Batch { return &memoryBatch{m: m} }

func (m *Memory) Close() error { return nil }

func (m *Memory) collection(name string) map[string]map[string]any {
	col, ok := m.data[name]
	if !ok {
		col = map[string]map[string]any{}
		m.data[name] = col
	}
	return col
}

func (m *Memory) set(collection, id string, data map[string]any, merge bool) {
	col := m.collection(collection)
	existing, ok := col[id]
	if !merge || !ok {
		col[id] = resolve(data, m.now()).(map[string]any)
		return
	}
	mergeInto(existing, data, m.now())
}

func (m *Memory) update(collection, id string, fields map[string]any) error {
	doc, ok := m.data[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	for path, v := range fields {
		setPath(doc, strings.Split(path, "."), v, m.now())
	}
	return nil
}

// resolve deep-copies v while replacing sentinels. Delete inside a full write drops the key.
func resolve(v any, now time.Time) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == Delete {
				continue
			}
			out[k] = resolve(val, now)
		}
		return out
	case Sentinel:
		if t == ServerTimestamp {
			return now
		}
		return nil
	}
	return deepCopy(v)
}

func mergeInto(dst, src map[string]any, now time.Time) {
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				mergeInto(existing, nested, now)
				continue
			}
		}
		setPath(dst, []string{k}, v, now)
	}
}

func setPath(doc map[string]any, parts []string, v any, now time.Time) {
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}

	last := parts[len(parts)-1]
	switch v {
	case Delete:
		delete(cur, last)
	case ServerTimestamp:
		cur[last] = now
	default:
		cur[last] = resolve(v, now)
	}
}

func matches(doc Doc, filters []Filter) bool {
	for _, f := range filters {
		got := doc.Get(f.Path)
		switch f.Op {
		case "==":
			if !equal(got, f.Value) {
				return false
			}
		case "in":
			values, _ := f.Value.([]any)
			if !slices.ContainsFunc(values, func(v any) bool { return equal(got, v) }) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	case []string:
		return slices.Clone(t)
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	}
	return v
}

type memoryOp struct {
	kind       string
	collection string
	id         string
	data       map[string]any
	merge      bool
}

type memoryBatch struct {
	m         *Memory
	ops       []memoryOp
	committed bool
}

func (b *memoryBatch) Set(collection, id string, data map[string]any, merge bool) {
	b.ops = append(b.ops, memoryOp{kind: "set", collection: collection, id: id, data: data, merge: merge})
}

func (b *memoryBatch) Update(collection, id string, fields map[string]any) {
	b.ops = append(b.ops, memoryOp{kind: "update", collection: collection, id: id, data: fields})
}

func (b *memoryBatch) Delete(collection, id string) {
	b.ops = append(b.ops, memoryOp{kind: "delete", collection: collection, id: id})
}

func (b *memoryBatch) Len() int { return len(b.ops) }

func (b *memoryBatch) Commit(ctx context.Context) error {
	if b.committed {
		return fmt.Errorf("batch already committed")
	}
	if len(b.ops) == 0 {
		return nil
	}
	if b.m.CommitHook != nil {
		if err := b.m.CommitHook(len(b.ops)); err != nil {
			return err
		}
	}

	b.m.mu.Lock()
	defer b.m.mu.Unlock()

	// earlier ops in the batch decide whether an update target exists
	exists := map[string]bool{}
	for _, op := range b.ops {
		key := op.collection + "/" + op.id
		switch op.kind {
		case "set":
			exists[key] = true
		case "delete":
			exists[key] = false
		case "update":
			found, seen := exists[key]
			if !seen {
				_, found = b.m.data[op.collection][op.id]
			}
			if !found {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, op.collection, op.id)
			}
		}
	}

	for _, op := range b.ops {
		switch op.kind {
		case "set":
			b.m.set(op.collection, op.id, op.data, op.merge)
		case "update":
			if err := b.m.update(op.collection, op.id, op.data); err != nil {
				return err
			}
		case "delete":
			delete(b.m.data[op.collection], op.id)
		}
	}

	b.committed = true
	b.m.commits++
	return nil
}
