package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/repteam/rep/internal/store"
)

func intakeData() map[string]any {
	return map[string]any{
		"userId": "u1",
		"profile": map[string]any{
			"firstName":      "Ada",
			"lastName":       "Lovelace",
			"currentTitle":   "VP Finance",
			"currentCompany": "Acme",
			"industry":       "Fintech",
		},
		"trajectory": "up",
		"filters": map[string]any{
			"hardConstraints": map[string]any{"minBase": 250000.0, "relocationWillingness": "none"},
			"softPreferences": map[string]any{"workStyle": "hybrid"},
		},
	}
}

func TestEngagementFromIntake(t *testing.T) {
	t.Run("Maps Profile And Constraints", func(t *testing.T) {
		doc := store.Doc{Data: EngagementFromIntake(store.Doc{ID: "i1", Data: intakeData()})}

		if doc.String("userId") != "u1" || doc.String("status") != "active" {
			t.Errorf("engagement = %v", doc.Data)
		}
		if doc.String("profile.headline") != "VP Finance" {
			t.Errorf("headline = %q, want the current title", doc.String("profile.headline"))
		}
		if doc.String("profile.pod") != "Fintech" {
			t.Errorf("pod = %q, want the industry", doc.String("profile.pod"))
		}
		if n, _ := doc.Number("targetParameters.minBase"); n != 250000 {
			t.Errorf("minBase = %v", n)
		}
		if doc.String("targetParameters.workStyle") != "hybrid" || doc.String("strategy.trajectory") != "up" {
			t.Errorf("engagement = %v", doc.Data)
		}
		if doc.Get("targetParameters.minLevel") != nil {
			t.Error("absent constraints should be nil")
		}
	})

	t.Run("Defaults Pod", func(t *testing.T) {
		doc := store.Doc{Data: EngagementFromIntake(store.Doc{Data: map[string]any{"userId": "u1"}})}
		if doc.String("profile.pod") != "General" {
			t.Errorf("pod = %q, want General", doc.String("profile.pod"))
		}
	})
}

func TestEngine_OnIntakeCreated(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates Engagement", func(t *testing.T) {
		mem := store.NewMemory()
		e := newTestEngine(mem, Deps{})

		id, err := e.OnIntakeCreated(ctx, "i1", intakeData())
		if err != nil {
			t.Fatalf("OnIntakeCreated() error = %v", err)
		}
		if id == "" {
			t.Fatal("OnIntakeCreated() returned no engagement id")
		}
		doc := mem.Doc(store.Engagements, id)
		if doc["userId"] != "u1" || doc["createdAt"] != fixedNow {
			t.Errorf("engagement = %v", doc)
		}
	})

	t.Run("Skips Existing Engagement", func(t *testing.T) {
		mem := store.NewMemory()
		mem.Seed(store.Engagements, "e1", map[string]any{"userId": "u1"})
		e := newTestEngine(mem, Deps{})

		id, err := e.OnIntakeCreated(ctx, "i1", intakeData())
		if err != nil || id != "" {
			t.Fatalf("OnIntakeCreated() = %q, %v, want a skip", id, err)
		}
		if mem.Count(store.Engagements) != 1 {
			t.Errorf("engagements = %d, want 1", mem.Count(store.Engagements))
		}
	})

	t.Run("Skips Without User", func(t *testing.T) {
		mem := store.NewMemory()
		e := newTestEngine(mem, Deps{})

		data := intakeData()
		delete(data, "userId")
		if id, err := e.OnIntakeCreated(ctx, "i1", data); err != nil || id != "" {
			t.Fatalf("OnIntakeCreated() = %q, %v, want a skip", id, err)
		}
		if mem.Count(store.Engagements) != 0 {
			t.Error("no engagement should be created")
		}
	})

	t.Run("Store Failure", func(t *testing.T) {
		e := newTestEngine(store.NewMemory(), Deps{})
		e.store = failingStore{Store: store.NewMemory(), err: errors.New("unavailable")}

		if _, err := e.OnIntakeCreated(ctx, "i1", intakeData()); err == nil {
			t.Fatal("OnIntakeCreated() expected error")
		}
	})
}

// failingStore fails every query.
type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Find(ctx context.Context, q store.Query) ([]store.Doc, error) {
	return nil, f.err
}
