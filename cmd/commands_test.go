package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/repteam/rep/internal/models"
	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
	tu "github.com/repteam/rep/internal/testing"
)

func seedCompanies(mem *store.Memory) {
	mem.Seed(store.Companies, "c1", map[string]any{"name": " Acme Corp "})
	mem.Seed(store.Companies, "c2", map[string]any{"name": "Beta", "name_lower": "beta"})
}

func TestDataCommands(t *testing.T) {
	t.Run("Task Commits And Prints Result", func(t *testing.T) {
		mem := store.NewMemory()
		seedCompanies(mem)
		r, out := newTestRunner(t, mem, RunnerOpts{})

		if err := run(t, r, "data", "backfill-companies"); err != nil {
			t.Fatalf("backfill-companies failed: %v", err)
		}
		if got := mem.Doc(store.Companies, "c1")["name_lower"]; got != "acme corp" {
			t.Errorf("name_lower = %v, want acme corp", got)
		}
		if !strings.Contains(out.String(), "backfill-companies complete") {
			t.Errorf("output = %s", out.String())
		}
	})

	t.Run("Dry Run Writes Nothing", func(t *testing.T) {
		mem := store.NewMemory()
		seedCompanies(mem)
		r, out := newTestRunner(t, mem, RunnerOpts{})

		if err := run(t, r, "data", "backfill-companies", "--dry-run"); err != nil {
			t.Fatalf("backfill-companies failed: %v", err)
		}
		if _, ok := mem.Doc(store.Companies, "c1")["name_lower"]; ok {
			t.Error("dry run should not write name_lower")
		}
		if mem.Commits() != 0 {
			t.Errorf("commits = %d, want 0", mem.Commits())
		}
		if !strings.Contains(out.String(), "dry run") {
			t.Errorf("output = %s", out.String())
		}
	})

	t.Run("Runs Are Recorded", func(t *testing.T) {
		mem := store.NewMemory()
		seedCompanies(mem)
		r, _ := newTestRunner(t, mem, RunnerOpts{})
		if err := run(t, r, "data", "backfill-companies"); err != nil {
			t.Fatalf("backfill-companies failed: %v", err)
		}

		ledger, out := newTestRunner(t, nil, RunnerOpts{Config: r.config})
		if err := run(t, ledger, "data", "runs", "--json"); err != nil {
			t.Fatalf("runs failed: %v", err)
		}

		var runs []map[string]any
		if err := json.Unmarshal(out.Bytes(), &runs); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, out.String())
		}
		if len(runs) != 1 || runs[0]["name"] != "backfill-companies" || runs[0]["status"] != models.RunSucceeded {
			t.Errorf("runs = %v", runs)
		}
	})

	t.Run("Inspect Document As JSON", func(t *testing.T) {
		mem := store.NewMemory()
		mem.Seed(store.Users, "u1", map[string]any{"email": "ada@example.com", "role": "client"})
		r, out := newTestRunner(t, mem, RunnerOpts{})

		if err := run(t, r, "data", "inspect", "--format", "json", "users", "u1"); err != nil {
			t.Fatalf("inspect failed: %v", err)
		}
		if !strings.Contains(out.String(), `"email": "ada@example.com"`) {
			t.Errorf("output = %s", out.String())
		}
	})

	t.Run("Inspect Rejects Unknown Format", func(t *testing.T) {
		r, _ := newTestRunner(t, store.NewMemory(), RunnerOpts{})

		err := run(t, r, "data", "inspect", "--format", "xml", "users")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("Duplicate Users To File", func(t *testing.T) {
		mem := store.NewMemory()
		mem.Seed(store.Users, "u1", map[string]any{"email": "Ada@example.com", "role": "client"})
		mem.Seed(store.Users, "u2", map[string]any{"email": "ada@example.com "})
		mem.Seed(store.Users, "u3", map[string]any{"email": "grace@example.com"})
		r, out := newTestRunner(t, mem, RunnerOpts{})
		path := filepath.Join(t.TempDir(), "dupes.csv")

		if err := run(t, r, "data", "duplicate-users", "--format", "csv", "--output", path); err != nil {
			t.Fatalf("duplicate-users failed: %v", err)
		}
		if out.Len() != 0 {
			t.Errorf("nothing should go to stdout, got %s", out.String())
		}
		csv := tu.MustReadFile(t, path)
		if !strings.Contains(csv, "ada@example.com,u1,client") || strings.Contains(csv, "grace") {
			t.Errorf("csv = %s", csv)
		}
	})
}

func TestTriggerCommands(t *testing.T) {
	t.Run("Placed Runs Handoff From Stored User", func(t *testing.T) {
		mem := store.NewMemory()
		mem.Seed(store.Users, "u1", map[string]any{
			"status":  "placed",
			"profile": map[string]any{"email": "ada@example.com", "name": "Ada Lovelace"},
		})
		mem.Seed(store.FinancialSubscriptions, "fs1", map[string]any{
			"userId":                 store.Ref{Collection: store.Users, ID: "u1"},
			"stripeCustomerId":       "cus_rep",
			"stripeSubscriptionId":   "sub_retainer",
			"defaultPaymentMethodId": "pm_rep",
			"plan":                   "retainer",
		})
		billing := &tu.MockBilling{}
		r, out := newTestRunner(t, mem, RunnerOpts{Billing: billing})

		if err := run(t, r, "trigger", "placed", "--user", "u1"); err != nil {
			t.Fatalf("trigger placed failed: %v", err)
		}
		if len(billing.CallList()) != 4 {
			t.Errorf("billing calls = %v", billing.CallList())
		}
		if !strings.Contains(out.String(), "Handoff u1: completed") {
			t.Errorf("output = %s", out.String())
		}

		reports, err := r.handoffs.List(map[string]any{"user_id": "u1"})
		if err != nil || len(reports) != 1 {
			t.Errorf("recorded handoffs = %v, err = %v", reports, err)
		}
	})

	t.Run("Placed Without Transition Is Skipped", func(t *testing.T) {
		mem := store.NewMemory()
		mem.Seed(store.Users, "u1", map[string]any{"status": "placed"})
		billing := &tu.MockBilling{}
		r, _ := newTestRunner(t, mem, RunnerOpts{Billing: billing})
		before := filepath.Join(t.TempDir(), "before.json")
		tu.MustWriteFile(t, before, `{"status":"placed"}`)

		if err := run(t, r, "trigger", "placed", "--user", "u1", "--before", before); err != nil {
			t.Fatalf("trigger placed failed: %v", err)
		}
		if calls := billing.CallList(); len(calls) != 0 {
			t.Errorf("billing should not be called, got %v", calls)
		}
	})

	t.Run("Application Sends Both Emails", func(t *testing.T) {
		mem := store.NewMemory()
		mem.Seed(store.Applications, "a1", map[string]any{"fullName": "Ada Lovelace", "email": "ada@example.com"})
		mailer := &tu.MockMailer{}
		r, out := newTestRunner(t, mem, RunnerOpts{Mailer: mailer})

		if err := run(t, r, "trigger", "application", "a1"); err != nil {
			t.Fatalf("trigger application failed: %v", err)
		}
		if len(mailer.Sent) != 2 {
			t.Errorf("sent %d emails, want 2", len(mailer.Sent))
		}
		if mem.Doc(store.Applications, "a1")["status"] != "new" {
			t.Error("application should be marked new")
		}
		if !strings.Contains(out.String(), "application a1 acknowledged") {
			t.Errorf("output = %s", out.String())
		}
	})

	t.Run("Application Missing Document", func(t *testing.T) {
		r, _ := newTestRunner(t, store.NewMemory(), RunnerOpts{Mailer: &tu.MockMailer{}})

		if err := run(t, r, "trigger", "application", "nope"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Intake Creates Engagement", func(t *testing.T) {
		mem := store.NewMemory()
		mem.Seed(store.IntakeResponses, "i1", map[string]any{
			"userId":  "u1",
			"profile": map[string]any{"firstName": "Ada", "industry": "Fintech"},
		})
		r, out := newTestRunner(t, mem, RunnerOpts{})

		if err := run(t, r, "trigger", "intake", "i1"); err != nil {
			t.Fatalf("trigger intake failed: %v", err)
		}
		if mem.Count(store.Engagements) != 1 {
			t.Errorf("engagements = %d, want 1", mem.Count(store.Engagements))
		}
		if !strings.Contains(out.String(), "intake i1 created engagement") {
			t.Errorf("output = %s", out.String())
		}
	})
}

func TestCallableCommands(t *testing.T) {
	t.Run("Provision Needs A Body", func(t *testing.T) {
		r, _ := newTestRunner(t, store.NewMemory(), RunnerOpts{Identity: tu.NewMockIdentity()})

		err := run(t, r, "client", "provision", "--rep", "rep1")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Data And File Are Exclusive", func(t *testing.T) {
		r, _ := newTestRunner(t, store.NewMemory(), RunnerOpts{})

		err := run(t, r, "client", "repair", "--data", "{}", "--file", "body.json")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Respond Uses Advisor Reply-To", func(t *testing.T) {
		mailer := &tu.MockMailer{}
		r, out := newTestRunner(t, store.NewMemory(), RunnerOpts{Mailer: mailer})
		body := `{"applicationId":"a1","candidateEmail":"ada@example.com","subject":"Hello","htmlBody":"<p>Hi</p>"}`

		if err := run(t, r, "application", "respond", "--as-email", "patrick@repteam.com", "--data", body); err != nil {
			t.Fatalf("respond failed: %v", err)
		}
		if len(mailer.Sent) != 1 || mailer.Sent[0].ReplyTo != "patrick@repteam.com" {
			t.Errorf("sent = %+v", mailer.Sent)
		}
		if !strings.Contains(out.String(), `"success": true`) {
			t.Errorf("output = %s", out.String())
		}
	})

	t.Run("Draft Prints Generated HTML", func(t *testing.T) {
		gen := &tu.MockGenerator{Response: "<p>Thanks for applying.</p>"}
		r, out := newTestRunner(t, store.NewMemory(), RunnerOpts{Generator: gen})

		if err := run(t, r, "application", "draft", "--data", `{"candidateName":"Ada","intent":"connect"}`); err != nil {
			t.Fatalf("draft failed: %v", err)
		}
		if !strings.Contains(out.String(), "Thanks for applying.") {
			t.Errorf("output = %s", out.String())
		}
	})

	t.Run("ATS Validates Input", func(t *testing.T) {
		r, _ := newTestRunner(t, store.NewMemory(), RunnerOpts{Generator: &tu.MockGenerator{}})

		err := run(t, r, "application", "ats", "--role", "CFO")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestAICommands(t *testing.T) {
	t.Run("Generate Strips Fences", func(t *testing.T) {
		gen := &tu.MockGenerator{Response: "```json\n{\"ok\":true}\n```"}
		r, out := newTestRunner(t, nil, RunnerOpts{Generator: gen})

		if err := run(t, r, "ai", "generate", "--model", "gemini-2.0-flash", "--json", "say ok"); err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if strings.TrimSpace(out.String()) != `{"ok":true}` {
			t.Errorf("output = %q", out.String())
		}
		if gen.Prompts[0] != "say ok" || !gen.Options[0].JSON || gen.Options[0].Models[0] != "gemini-2.0-flash" {
			t.Errorf("prompt = %q options = %+v", gen.Prompts[0], gen.Options[0])
		}
	})

	t.Run("Generate Without Key", func(t *testing.T) {
		r, _ := newTestRunner(t, nil, RunnerOpts{})

		if err := run(t, r, "ai", "generate", "hello"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Diagnose Without Key", func(t *testing.T) {
		r, _ := newTestRunner(t, store.NewMemory(), RunnerOpts{})

		if err := run(t, r, "ai", "diagnose"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("Setup Migrates Ledger", func(t *testing.T) {
		r, out := newTestRunner(t, nil, RunnerOpts{})

		if err := run(t, r, "setup"); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		tu.AssertFileExists(t, r.config.Database.Path)
		if !strings.Contains(out.String(), "run ledger ready") {
			t.Errorf("output = %s", out.String())
		}

		if err := run(t, r, "setup", "--rollback"); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
	})

	t.Run("Config Init Writes Once", func(t *testing.T) {
		r, _ := newTestRunner(t, nil, RunnerOpts{})
		path := filepath.Join(t.TempDir(), "config.toml")

		if err := run(t, r, "--config", path, "config", "init"); err != nil {
			t.Fatalf("config init failed: %v", err)
		}
		if !strings.Contains(tu.MustReadFile(t, path), "[billing]") {
			t.Error("expected the example config to be written")
		}
		if err := run(t, r, "--config", path, "config", "init"); err == nil {
			t.Error("expected an error for an existing config file")
		}
	})

	t.Run("Config Is Loaded From File And Env File", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "config.toml")
		envPath := filepath.Join(dir, ".env")
		tu.MustWriteFile(t, configPath, "[database]\npath = \""+filepath.Join(dir, "ledger.db")+"\"\n\n[server]\nport = 9090\n")
		tu.MustWriteFile(t, envPath, "REP_EVENT_SECRET=from-dotenv\n")
		t.Setenv("REP_EVENT_SECRET", "")
		os.Unsetenv("REP_EVENT_SECRET")

		r := NewRunner(RunnerOpts{Output: &strings.Builder{}})
		t.Cleanup(func() { r.Close() })
		if err := run(t, r, "--config", configPath, "--env-file", envPath, "setup"); err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		if r.config.Server.Port != 9090 {
			t.Errorf("port = %d, want 9090 from the file", r.config.Server.Port)
		}
		if r.config.Server.EventSecret != "from-dotenv" {
			t.Errorf("event secret = %q, want the .env value", r.config.Server.EventSecret)
		}
		tu.AssertFileExists(t, filepath.Join(dir, "ledger.db"))
	})
}

func TestBillingCommands(t *testing.T) {
	t.Run("Lists Partial Handoffs", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Database.Path = filepath.Join(t.TempDir(), "rep.db")
		db, err := openDatabase(context.Background(), config.Database)
		if err != nil {
			t.Fatalf("open ledger: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		r, out := newTestRunner(t, nil, RunnerOpts{Config: config, DB: db})

		h := models.NewHandoffReport(0, "u9")
		h.Done(models.StepLookup)
		h.Done(models.StepCancelRetainer)
		h.Fail(models.StepCreateCustomer, errors.New("card declined"))
		h.SetOutcome(models.OutcomeFailed)
		if err := r.handoffs.Create(h); err != nil {
			t.Fatalf("create handoff: %v", err)
		}

		if err := run(t, r, "billing", "handoffs", "--partial"); err != nil {
			t.Fatalf("handoffs failed: %v", err)
		}
		if !strings.Contains(out.String(), "u9") || !strings.Contains(out.String(), "card declined") {
			t.Errorf("output = %s", out.String())
		}

		out.Reset()
		if err := run(t, r, "billing", "handoff", h.ID()); err != nil {
			t.Fatalf("handoff failed: %v", err)
		}
		if !strings.Contains(out.String(), "PARTIAL") {
			t.Errorf("output = %s", out.String())
		}
	})
}
