package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore implements [Store] on Cloud Firestore.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore connects to the default database of projectID.
func NewFirestore(ctx context.Context, projectID string, opts ...option.ClientOption) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &Firestore{client: client}, nil
}

// NewFirestoreFromClient wraps an existing client, e.g. one obtained from a Firebase app.
func NewFirestoreFromClient(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) Get(ctx context.Context, collection, id string) (*Doc, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, f.wrap(err, collection, id)
	}
	return &Doc{ID: snap.Ref.ID, Data: fromNative(snap.Data()).(map[string]any)}, nil
}

func (f *Firestore) Find(ctx context.Context, q Query) ([]Doc, error) {
	query := f.client.Collection(q.Collection).Query
	for _, w := range q.Where {
		query = query.Where(w.Path, w.Op, f.toNative(w.Value))
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}

	docs := make([]Doc, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, Doc{ID: snap.Ref.ID, Data: fromNative(snap.Data()).(map[string]any)})
	}
	return docs, nil
}

func (f *Firestore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	var opts []firestore.SetOption
	if merge {
		opts = append(opts, firestore.MergeAll)
	}
	if _, err := f.client.Collection(collection).Doc(id).Set(ctx, f.toNative(data), opts...); err != nil {
		return f.wrap(err, collection, id)
	}
	return nil
}

func (f *Firestore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if _, err := f.client.Collection(collection).Doc(id).Update(ctx, f.updates(fields)); err != nil {
		return f.wrap(err, collection, id)
	}
	return nil
}

func (f *Firestore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	ref, _, err := f.client.Collection(collection).Add(ctx, f.toNative(data))
	if err != nil {
		return "", fmt.Errorf("failed to add to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (f *Firestore) NewID(collection string) string {
	return f.client.Collection(collection).NewDoc().ID
}

func (f *Firestore) Batch() Batch {
	return &firestoreBatch{f: f, wb: f.client.Batch()}
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

// Client exposes the underlying client for callers that need native features.
func (f *Firestore) Client() *firestore.Client { return f.client }

func (f *Firestore) updates(fields map[string]any) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for path, v := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: f.toNative(v)})
	}
	return updates
}

func (f *Firestore) wrap(err error, collection, id string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return fmt.Errorf("firestore %s/%s: %w", collection, id, err)
}

// toNative converts sentinels and references into their Firestore representations.
func (f *Firestore) toNative(v any) any {
	switch t := v.(type) {
	case Sentinel:
		switch t {
		case Delete:
			return firestore.Delete
		case ServerTimestamp:
			return firestore.ServerTimestamp
		}
	case Ref:
		return f.client.Doc(t.Path())
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = f.toNative(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = f.toNative(val)
		}
		return out
	}
	return v
}

// fromNative converts Firestore references back into [Ref] values.
func fromNative(v any) any {
	switch t := v.(type) {
	case *firestore.DocumentRef:
		if t == nil {
			return nil
		}
		return Ref{Collection: t.Parent.ID, ID: t.ID}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = fromNative(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = fromNative(val)
		}
		return out
	}
	return v
}

type firestoreBatch struct {
	f  *Firestore
	wb *firestore.WriteBatch
	n  int
}

func (b *firestoreBatch) Set(collection, id string, data map[string]any, merge bool) {
	var opts []firestore.SetOption
	if merge {
		opts = append(opts, firestore.MergeAll)
	}
	b.wb.Set(b.f.client.Collection(collection).Doc(id), b.f.toNative(data), opts...)
	b.n++
}

func (b *firestoreBatch) Update(collection, id string, fields map[string]any) {
	b.wb.Update(b.f.client.Collection(collection).Doc(id), b.f.updates(fields))
	b.n++
}

func (b *firestoreBatch) Delete(collection, id string) {
	b.wb.Delete(b.f.client.Collection(collection).Doc(id))
	b.n++
}

func (b *firestoreBatch) Len() int { return b.n }

func (b *firestoreBatch) Commit(ctx context.Context) error {
	if b.n == 0 {
		return nil
	}
	if _, err := b.wb.Commit(ctx); err != nil {
		return fmt.Errorf("firestore batch of %d writes: %w", b.n, err)
	}
	return nil
}
