package tasks

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

func TestEngine_MigrateStatusToStageID(t *testing.T) {
	ctx := context.Background()

	seed := func() *store.Memory {
		mem := store.NewMemory()
		mem.Seed(store.JobPursuits, "p1", map[string]any{"status": "outreach"})
		mem.Seed(store.JobPursuits, "p2", map[string]any{"status": "mystery"})
		mem.Seed(store.JobPursuits, "p3", map[string]any{"stageId": "engagement"})
		mem.Seed(store.JobPursuits, "p4", map[string]any{"status": "offer", "stageId": "engagement"})
		mem.Seed(store.JobPursuits, "p5", map[string]any{"status": int64(3)})
		mem.Seed(store.JobPursuits, "p6", map[string]any{"status": "", "stageId": "placed"})
		mem.Seed(store.JobPursuits, "p7", map[string]any{"company": "Acme"})
		return mem
	}

	t.Run("Maps Statuses", func(t *testing.T) {
		mem := seed()
		e := newTestEngine(mem, Deps{})

		res, err := e.MigrateStatusToStageID(ctx, TaskOptions{})
		if err != nil {
			t.Fatalf("MigrateStatusToStageID() error = %v", err)
		}

		if res.Scanned != 7 || res.Changed != 4 || res.Skipped != 3 || res.Committed != 4 {
			t.Errorf("result = %+v", res)
		}
		if res.Counts["unmapped"] != 2 {
			t.Errorf("unmapped = %d, want 2", res.Counts["unmapped"])
		}

		p1 := mem.Doc(store.JobPursuits, "p1")
		if p1["stageId"] != "outreach_execution" {
			t.Errorf("p1 stageId = %v", p1["stageId"])
		}
		if _, ok := p1["status"]; ok {
			t.Error("p1 status should be removed")
		}
		if mem.Doc(store.JobPursuits, "p2")["stageId"] != "mystery" {
			t.Error("unmapped status should be kept as the stage")
		}
		if mem.Doc(store.JobPursuits, "p3")["stageId"] != "engagement" {
			t.Error("p3 should be untouched")
		}
	})

	t.Run("Edge Cases", func(t *testing.T) {
		mem := seed()
		e := newTestEngine(mem, Deps{})

		if _, err := e.MigrateStatusToStageID(ctx, TaskOptions{}); err != nil {
			t.Fatalf("MigrateStatusToStageID() error = %v", err)
		}

		tests := []struct {
			name       string
			id         string
			wantStage  any
			wantStatus bool
		}{
			{"status overwrites an existing stageId", "p4", "offer_pending", false},
			{"numeric status is migrated by its text", "p5", "3", false},
			{"empty status with a stageId is skipped", "p6", "placed", true},
			{"neither field is skipped", "p7", nil, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				doc := mem.Doc(store.JobPursuits, tt.id)
				if doc["stageId"] != tt.wantStage {
					t.Errorf("stageId = %v, want %v", doc["stageId"], tt.wantStage)
				}
				if _, ok := doc["status"]; ok != tt.wantStatus {
					t.Errorf("status present = %v, want %v (doc %v)", ok, tt.wantStatus, doc)
				}
			})
		}
		if mem.Doc(store.JobPursuits, "p7")["company"] != "Acme" {
			t.Error("p7 should be untouched")
		}
	})

	t.Run("Dry Run", func(t *testing.T) {
		mem := seed()
		e := newTestEngine(mem, Deps{})

		res, err := e.MigrateStatusToStageID(ctx, TaskOptions{DryRun: true})
		if err != nil {
			t.Fatalf("MigrateStatusToStageID() error = %v", err)
		}
		if res.Changed != 4 || res.Committed != 0 || mem.Commits() != 0 {
			t.Errorf("result = %+v commits = %d", res, mem.Commits())
		}
		if mem.Doc(store.JobPursuits, "p1")["status"] != "outreach" {
			t.Error("dry run changed a document")
		}
	})

	t.Run("Sends Progress", func(t *testing.T) {
		e := newTestEngine(seed(), Deps{})
		progress := make(chan ProgressUpdate, 100)

		if _, err := e.MigrateStatusToStageID(ctx, TaskOptions{Progress: progress}); err != nil {
			t.Fatalf("MigrateStatusToStageID() error = %v", err)
		}
		close(progress)

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if len(phases) == 0 || phases[0] != Scan || phases[len(phases)-1] != Complete {
			t.Errorf("phases = %v", phases)
		}
	})
}

func TestStageFor(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"outreach", "outreach_execution"},
		{"interviewing", "interview_loop"},
		{"negotiating", "offer_pending"},
		{"placed", "placed"},
		{"custom_stage", "custom_stage"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := StageFor(tt.status); got != tt.want {
				t.Errorf("StageFor(%q) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func seedCompanies(mem *store.Memory) {
	mem.Seed(store.Companies, "c1", map[string]any{
		"name":      "Acme",
		"locations": []any{map[string]any{"id": "l1", "city": "NYC"}},
		"createdAt": "2024-01-01T00:00:00Z",
	})
	mem.Seed(store.Companies, "c2", map[string]any{
		"name":      " acme ",
		"locations": []any{map[string]any{"id": "l1", "city": "NYC"}, map[string]any{"id": "l2", "city": "SF"}},
		"createdAt": "2024-02-01T00:00:00Z",
	})
	mem.Seed(store.Companies, "c3", map[string]any{"name": "ACME", "createdAt": "2023-01-01T00:00:00Z"})
	mem.Seed(store.Companies, "c4", map[string]any{"name": "Other"})
	mem.Seed(store.Contacts, "k1", map[string]any{"companyId": "c1"})
	mem.Seed(store.Contacts, "k2", map[string]any{"companyId": "c4"})
	mem.Seed(store.JobPursuits, "p1", map[string]any{"companyId": "c3", "company": "ACME"})
}

func TestEngine_DedupeCompanies(t *testing.T) {
	ctx := context.Background()

	t.Run("Merges Into Company With Most Locations", func(t *testing.T) {
		mem := store.NewMemory()
		seedCompanies(mem)
		e := newTestEngine(mem, Deps{})

		res, err := e.DedupeCompanies(ctx, TaskOptions{})
		if err != nil {
			t.Fatalf("DedupeCompanies() error = %v", err)
		}

		if res.Scanned != 4 || res.Changed != 1 || res.Skipped != 1 {
			t.Errorf("result = %+v", res)
		}
		if res.Counts["deleted"] != 2 || res.Counts["contacts"] != 1 || res.Counts["pursuits"] != 1 {
			t.Errorf("counts = %v", res.Counts)
		}

		if mem.Count(store.Companies) != 2 || mem.Doc(store.Companies, "c1") != nil || mem.Doc(store.Companies, "c3") != nil {
			t.Errorf("companies left = %d", mem.Count(store.Companies))
		}
		winner := store.Doc{Data: mem.Doc(store.Companies, "c2")}
		if len(winner.Slice("locations")) != 2 || winner.String("name_lower") != "acme" {
			t.Errorf("winner = %v", winner.Data)
		}
		if mem.Doc(store.Contacts, "k1")["companyId"] != "c2" || mem.Doc(store.Contacts, "k2")["companyId"] != "c4" {
			t.Error("contacts not remapped")
		}
		p1 := mem.Doc(store.JobPursuits, "p1")
		if p1["companyId"] != "c2" || p1["company"] != " acme " {
			t.Errorf("pursuit = %v", p1)
		}
	})

	t.Run("Dry Run Writes Nothing", func(t *testing.T) {
		mem := store.NewMemory()
		seedCompanies(mem)
		e := newTestEngine(mem, Deps{})

		res, err := e.DedupeCompanies(ctx, TaskOptions{DryRun: true})
		if err != nil {
			t.Fatalf("DedupeCompanies() error = %v", err)
		}
		if res.Changed != 1 || res.Committed != 0 || mem.Count(store.Companies) != 4 {
			t.Errorf("result = %+v companies = %d", res, mem.Count(store.Companies))
		}
	})
}

func TestPickWinner(t *testing.T) {
	early := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	tests := []struct {
		name  string
		group []store.Doc
		want  string
	}{
		{
			name: "Most Locations",
			group: []store.Doc{
				{ID: "a", Data: map[string]any{"locations": []any{"x"}}},
				{ID: "b", Data: map[string]any{"locations": []any{"x", "y"}}},
			},
			want: "b",
		},
		{
			name: "Earliest On Tie",
			group: []store.Doc{
				{ID: "a", Data: map[string]any{"createdAt": late}},
				{ID: "b", Data: map[string]any{"createdAt": early}},
			},
			want: "b",
		},
		{
			name: "Dated Beats Undated",
			group: []store.Doc{
				{ID: "a", Data: map[string]any{}},
				{ID: "b", Data: map[string]any{"createdAt": "2024-05-01T00:00:00Z"}},
			},
			want: "b",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PickWinner(tt.group)[0].ID; got != tt.want {
				t.Errorf("winner = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMergeLocations(t *testing.T) {
	t.Run("Empty Group Gives Empty Slice", func(t *testing.T) {
		got := MergeLocations(store.Doc{Data: map[string]any{}}, nil)
		if got == nil || len(got) != 0 {
			t.Errorf("MergeLocations() = %#v", got)
		}
	})

	t.Run("Skips Known Ids", func(t *testing.T) {
		winner := store.Doc{Data: map[string]any{"locations": []any{map[string]any{"id": "l1"}}}}
		losers := []store.Doc{
			{Data: map[string]any{"locations": []any{map[string]any{"id": "l1"}, map[string]any{"id": "l2"}}}},
			{Data: map[string]any{"locations": []any{map[string]any{"id": "l2"}}}},
		}
		if got := MergeLocations(winner, losers); len(got) != 2 {
			t.Errorf("MergeLocations() = %v, want two locations", got)
		}
	})
}

func TestEngine_BackfillCompanies(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed(store.Companies, "c1", map[string]any{"name": "Acme Corp", "name_lower": "acme corp"})
	mem.Seed(store.Companies, "c2", map[string]any{"name": " Beta "})
	mem.Seed(store.Companies, "c3", map[string]any{"name": "Gamma", "name_lower": "stale"})
	e := newTestEngine(mem, Deps{})

	res, err := e.BackfillCompanies(context.Background(), TaskOptions{})
	if err != nil {
		t.Fatalf("BackfillCompanies() error = %v", err)
	}

	if res.Changed != 2 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}
	if mem.Doc(store.Companies, "c2")["name_lower"] != "beta" || mem.Doc(store.Companies, "c3")["name_lower"] != "gamma" {
		t.Error("name_lower not backfilled")
	}
}

func TestEngine_FixEngagementUserIDs(t *testing.T) {
	ctx := context.Background()

	seed := func() *store.Memory {
		mem := store.NewMemory()
		mem.Seed(store.Engagements, "e1", map[string]any{"userId": "u0"})
		mem.Seed(store.Engagements, "e2", map[string]any{"contactId": "k1"})
		mem.Seed(store.Engagements, "e3", map[string]any{"contactId": "missing"})
		mem.Seed(store.Engagements, "e4", map[string]any{"contactId": "k4"})
		mem.Seed(store.Engagements, "e5", map[string]any{})
		mem.Seed(store.Contacts, "k1", map[string]any{"userId": "u1"})
		mem.Seed(store.Contacts, "k4", map[string]any{"email": "no-user@example.com"})
		return mem
	}

	t.Run("Follows Contacts", func(t *testing.T) {
		mem := seed()
		e := newTestEngine(mem, Deps{})

		res, err := e.FixEngagementUserIDs(ctx, TaskOptions{})
		if err != nil {
			t.Fatalf("FixEngagementUserIDs() error = %v", err)
		}

		if res.Scanned != 5 || res.Changed != 1 || res.Skipped != 1 || res.Failed != 3 {
			t.Errorf("result = %+v", res)
		}
		for _, reason := range []string{"contact_not_found", "contact_without_user", "no_contact_id"} {
			if res.Counts[reason] != 1 {
				t.Errorf("count %s = %d, want 1", reason, res.Counts[reason])
			}
		}
		if mem.Doc(store.Engagements, "e2")["userId"] != "u1" {
			t.Error("e2 userId not fixed")
		}
		if mem.Doc(store.Engagements, "e1")["userId"] != "u0" {
			t.Error("e1 should be untouched")
		}
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		e := newTestEngine(seed(), Deps{})

		if _, err := e.FixEngagementUserIDs(cctx, TaskOptions{}); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})
}

func TestEngine_FixOrphanedPursuits(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed(store.Engagements, "eA", map[string]any{"userId": "u1", "status": "active"})
	mem.Seed(store.Engagements, "eB", map[string]any{"userId": "u2", "status": "closed"})
	mem.Seed(store.JobPursuits, "p1", map[string]any{"userId": "u1", "engagementId": "orphaned"})
	mem.Seed(store.JobPursuits, "p2", map[string]any{"userId": "u1", "engagementId": ""})
	mem.Seed(store.JobPursuits, "p3", map[string]any{"userId": "u1", "engagementId": "eX"})
	mem.Seed(store.JobPursuits, "p4", map[string]any{"engagementId": "orphaned"})
	mem.Seed(store.JobPursuits, "p5", map[string]any{"userId": "u2"})
	e := newTestEngine(mem, Deps{})

	res, err := e.FixOrphanedPursuits(context.Background(), TaskOptions{})
	if err != nil {
		t.Fatalf("FixOrphanedPursuits() error = %v", err)
	}

	if res.Changed != 2 || res.Skipped != 3 {
		t.Errorf("result = %+v", res)
	}
	if res.Counts["no_user"] != 1 || res.Counts["no_engagement"] != 1 {
		t.Errorf("counts = %v", res.Counts)
	}
	for _, id := range []string{"p1", "p2"} {
		if mem.Doc(store.JobPursuits, id)["engagementId"] != "eA" {
			t.Errorf("%s not linked", id)
		}
	}
	if mem.Doc(store.JobPursuits, "p3")["engagementId"] != "eX" {
		t.Error("linked pursuit should be untouched")
	}
}

func TestEngine_MigrateOpportunities(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.Seed(store.Opportunities, "o1", map[string]any{
		"company": "Acme", "role": "CFO", "userId": "u1", "status": "offer", "createdAt": "2024-01-01T00:00:00Z",
	})
	mem.Seed(store.Opportunities, "o2", map[string]any{"company": "Beta", "engagementId": "e1", "financials": map[string]any{"base": 200000.0}})
	mem.Seed(store.Opportunities, "o3", map[string]any{})
	mem.Seed(store.Engagements, "e1", map[string]any{"contactId": "k1"})
	mem.Seed(store.Contacts, "k1", map[string]any{"userId": "u9"})
	e := newTestEngine(mem, Deps{})

	res, err := e.MigrateOpportunities(ctx, TaskOptions{})
	if err != nil {
		t.Fatalf("MigrateOpportunities() error = %v", err)
	}

	if res.Changed != 3 || res.Counts["targets"] != 3 || res.Counts["pursuits"] != 2 {
		t.Errorf("result = %+v", res)
	}
	if mem.Count(store.JobTargets) != 3 || mem.Count(store.Opportunities) != 3 {
		t.Errorf("targets = %d opportunities = %d", mem.Count(store.JobTargets), mem.Count(store.Opportunities))
	}

	find := func(collection string, f store.Filter) store.Doc {
		t.Helper()
		docs, err := mem.Find(ctx, store.Query{Collection: collection, Where: []store.Filter{f}})
		if err != nil || len(docs) != 1 {
			t.Fatalf("Find(%s) = %d docs, %v", collection, len(docs), err)
		}
		return docs[0]
	}

	unknown := find(store.JobTargets, store.Eq("company", "Unknown Company"))
	if unknown.String("role") != "Unknown Role" || unknown.String("source") != "manual" || unknown.String("status") != "OPEN" {
		t.Errorf("target = %v", unknown.Data)
	}
	if unknown.String("createdAt") != "2025-03-01T12:00:00Z" {
		t.Errorf("createdAt = %v, want now", unknown.Get("createdAt"))
	}
	if legacy := unknown.Slice("legacyIds"); len(legacy) != 1 || legacy[0] != "o3" {
		t.Errorf("legacyIds = %v", legacy)
	}

	direct := find(store.JobPursuits, store.Eq("userId", "u1"))
	if direct.Get("engagementId") != nil || direct.String("status") != "offer" || direct.String("createdAt") != "2024-01-01T00:00:00Z" {
		t.Errorf("pursuit = %v", direct.Data)
	}
	target := find(store.JobTargets, store.Eq("company", "Acme"))
	if direct.String("targetId") != target.ID {
		t.Error("pursuit should reference its target")
	}

	viaContact := find(store.JobPursuits, store.Eq("userId", "u9"))
	if viaContact.String("engagementId") != "e1" || viaContact.String("status") != "outreach" {
		t.Errorf("pursuit = %v", viaContact.Data)
	}
	if n, _ := viaContact.Number("financials.base"); n != 200000 {
		t.Errorf("financials = %v", viaContact.Map("financials"))
	}
}

func TestEngine_DeleteLegacyOpportunities(t *testing.T) {
	ctx := context.Background()

	seed := func() *store.Memory {
		mem := store.NewMemory()
		for _, id := range []string{"o1", "o2", "o3"} {
			mem.Seed(store.Opportunities, id, map[string]any{})
		}
		return mem
	}

	t.Run("Deletes Everything", func(t *testing.T) {
		mem := seed()
		res, err := newTestEngine(mem, Deps{}).DeleteLegacyOpportunities(ctx, TaskOptions{})
		if err != nil {
			t.Fatalf("DeleteLegacyOpportunities() error = %v", err)
		}
		if res.Changed != 3 || res.Committed != 3 || mem.Count(store.Opportunities) != 0 {
			t.Errorf("result = %+v left = %d", res, mem.Count(store.Opportunities))
		}
	})

	t.Run("Dry Run Keeps Everything", func(t *testing.T) {
		mem := seed()
		if _, err := newTestEngine(mem, Deps{}).DeleteLegacyOpportunities(ctx, TaskOptions{DryRun: true}); err != nil {
			t.Fatalf("DeleteLegacyOpportunities() error = %v", err)
		}
		if mem.Count(store.Opportunities) != 3 {
			t.Error("dry run deleted documents")
		}
	})
}

func TestEngine_FindDuplicateUsers(t *testing.T) {
	mem := store.NewMemory()
	mem.Seed(store.Users, "u1", map[string]any{"email": "Ada@Example.com", "role": "client", "profile": map[string]any{"name": "Ada"}})
	mem.Seed(store.Users, "u2", map[string]any{"email": "ada@example.com ", "role": "rep", "displayName": "A. L."})
	mem.Seed(store.Users, "u3", map[string]any{"email": "bob@example.com"})
	mem.Seed(store.Users, "u4", map[string]any{"role": "client"})
	e := newTestEngine(mem, Deps{})

	groups, res, err := e.FindDuplicateUsers(context.Background(), TaskOptions{})
	if err != nil {
		t.Fatalf("FindDuplicateUsers() error = %v", err)
	}

	if len(groups) != 1 || groups[0].Email != "ada@example.com" {
		t.Fatalf("groups = %+v", groups)
	}
	want := []DuplicateUser{{ID: "u1", Role: "client", Name: "Ada"}, {ID: "u2", Role: "rep", Name: "A. L."}}
	if !slices.Equal(groups[0].Users, want) {
		t.Errorf("users = %+v, want %+v", groups[0].Users, want)
	}
	if res.Changed != 2 || res.Skipped != 1 || res.Counts["groups"] != 1 {
		t.Errorf("result = %+v", res)
	}
	if mem.Commits() != 0 {
		t.Error("duplicate report should not write")
	}
}

func TestParseWhere(t *testing.T) {
	tests := []struct {
		expr     string
		wantPath string
		want     any
		wantErr  bool
	}{
		{expr: "status=active", wantPath: "status", want: "active"},
		{expr: "profile.pod = Fintech", wantPath: "profile.pod", want: "Fintech"},
		{expr: "count=3", wantPath: "count", want: 3.0},
		{expr: "active=true", wantPath: "active", want: true},
		{expr: "engagementId=null", wantPath: "engagementId", want: nil},
		{expr: `zip="02139"`, wantPath: "zip", want: "02139"},
		{expr: "userId=ref:users/u1", wantPath: "userId", want: store.Ref{Collection: store.Users, ID: "u1"}},
		{expr: "userId=ref:users", wantPath: "userId", want: "ref:users"},
		{expr: "status", wantErr: true},
		{expr: "=active", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := ParseWhere(tt.expr)
			if tt.wantErr {
				if !errors.Is(err, shared.ErrInvalidFlag) {
					t.Errorf("ParseWhere() error = %v, want ErrInvalidFlag", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWhere() error = %v", err)
			}
			if f.Path != tt.wantPath || f.Value != tt.want {
				t.Errorf("ParseWhere() = %q %#v, want %q %#v", f.Path, f.Value, tt.wantPath, tt.want)
			}
		})
	}
}

func TestEngine_Inspect(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.Seed(store.Engagements, "e1", map[string]any{"status": "active", "monthlyRetainer": 1500.0})
	mem.Seed(store.Engagements, "e2", map[string]any{"status": "placed"})
	mem.Seed(store.Engagements, "e3", map[string]any{"status": "active"})
	e := newTestEngine(mem, Deps{})

	t.Run("Single Document", func(t *testing.T) {
		got, err := e.Inspect(ctx, InspectRequest{Collection: store.Engagements, ID: "e2", Where: []string{"ignored"}})
		if err != nil {
			t.Fatalf("Inspect() error = %v", err)
		}
		if len(got.Docs) != 1 || got.Docs[0].ID != "e2" {
			t.Errorf("docs = %+v", got.Docs)
		}
	})

	t.Run("Filtered Listing", func(t *testing.T) {
		got, err := e.Inspect(ctx, InspectRequest{Collection: store.Engagements, Where: []string{"status=active"}})
		if err != nil {
			t.Fatalf("Inspect() error = %v", err)
		}
		if len(got.Docs) != 2 || got.Docs[0].ID != "e1" || got.Docs[1].ID != "e3" {
			t.Errorf("docs = %+v", got.Docs)
		}
		if !slices.Equal(got.Filters, []string{"status=active"}) {
			t.Errorf("Filters = %v", got.Filters)
		}
	})

	t.Run("Numeric Filter With Limit", func(t *testing.T) {
		got, err := e.Inspect(ctx, InspectRequest{Collection: store.Engagements, Where: []string{"monthlyRetainer=1500"}, Limit: 5})
		if err != nil {
			t.Fatalf("Inspect() error = %v", err)
		}
		if len(got.Docs) != 1 || got.Docs[0].ID != "e1" {
			t.Errorf("docs = %+v", got.Docs)
		}
	})

	t.Run("Missing Document", func(t *testing.T) {
		if _, err := e.Inspect(ctx, InspectRequest{Collection: store.Engagements, ID: "nope"}); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Missing Collection", func(t *testing.T) {
		if _, err := e.Inspect(ctx, InspectRequest{}); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("error = %v, want ErrMissingArgument", err)
		}
	})

	t.Run("Bad Filter", func(t *testing.T) {
		if _, err := e.Inspect(ctx, InspectRequest{Collection: store.Engagements, Where: []string{"nope"}}); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("error = %v, want ErrInvalidFlag", err)
		}
	})
}
