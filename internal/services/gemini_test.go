package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/repteam/rep/internal/shared"
)

// fakeModels is a [ModelClient] answering per model
type fakeModels struct {
	answers map[string]string
	errs    map[string]error
	calls   []string
	opts    []GenerateOptions
}

func (f *fakeModels) GenerateContent(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	f.calls = append(f.calls, model)
	f.opts = append(f.opts, opts)
	if err := f.errs[model]; err != nil {
		return "", err
	}
	return f.answers[model], nil
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

func TestFallbackGenerator(t *testing.T) {
	ctx := context.Background()
	cfg := shared.AIConfig{Models: []string{"m1", "m2", "m3"}}

	t.Run("First Model Wins", func(t *testing.T) {
		client := &fakeModels{answers: map[string]string{"m1": "hello", "m2": "unused"}}
		g := NewFallbackGenerator(client, cfg, quietLogger())

		text, err := g.Generate(ctx, "prompt", GenerateOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != "hello" {
			t.Errorf("expected hello, got %q", text)
		}
		if len(client.calls) != 1 {
			t.Errorf("expected one call, got %v", client.calls)
		}
		if client.opts[0].Temperature != DefaultTemperature || client.opts[0].MaxOutputTokens != DefaultMaxOutputTokens {
			t.Errorf("expected defaults to be applied, got %+v", client.opts[0])
		}
	})

	t.Run("Falls Through Errors And Empty Text", func(t *testing.T) {
		client := &fakeModels{
			answers: map[string]string{"m2": "```", "m3": "```html\n<p>Hi</p>\n```"},
			errs:    map[string]error{"m1": errors.New("404 model not found")},
		}
		g := NewFallbackGenerator(client, cfg, quietLogger())

		text, err := g.Generate(ctx, "prompt", GenerateOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != "<p>Hi</p>" {
			t.Errorf("expected fenced html to be stripped, got %q", text)
		}
		if !slices.Equal(client.calls, []string{"m1", "m2", "m3"}) {
			t.Errorf("unexpected call order %v", client.calls)
		}
	})

	t.Run("Invalid Key Stops Immediately", func(t *testing.T) {
		client := &fakeModels{errs: map[string]error{"m1": errors.New("400 INVALID_ARGUMENT: API_KEY_INVALID")}}
		g := NewFallbackGenerator(client, cfg, quietLogger())

		_, err := g.Generate(ctx, "prompt", GenerateOptions{})
		if !IsInvalidKey(err) {
			t.Errorf("expected ErrInvalidAPIKey, got %v", err)
		}
		if len(client.calls) != 1 {
			t.Errorf("expected no fallback after invalid key, got %v", client.calls)
		}
	})

	t.Run("All Models Fail", func(t *testing.T) {
		last := errors.New("503 overloaded")
		client := &fakeModels{errs: map[string]error{"m1": errors.New("a"), "m2": errors.New("b"), "m3": last}}
		g := NewFallbackGenerator(client, cfg, quietLogger())

		_, err := g.Generate(ctx, "prompt", GenerateOptions{})
		if !errors.Is(err, shared.ErrAllModelsFailed) || !errors.Is(err, last) {
			t.Fatalf("expected ErrAllModelsFailed wrapping the last error, got %v", err)
		}
		if !strings.Contains(err.Error(), "tried 3 models") {
			t.Errorf("expected model count in %q", err.Error())
		}
	})

	t.Run("Per Call Models", func(t *testing.T) {
		client := &fakeModels{answers: map[string]string{"ats": "{}"}}
		g := NewFallbackGenerator(client, cfg, quietLogger())

		if _, err := g.Generate(ctx, "prompt", GenerateOptions{Models: []string{"ats"}, JSON: true}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.calls[0] != "ats" || !client.opts[0].JSON {
			t.Errorf("expected override model with JSON output, got %v %+v", client.calls, client.opts[0])
		}
	})

	t.Run("Missing Client", func(t *testing.T) {
		g := NewFallbackGenerator(nil, cfg, quietLogger())
		if _, err := g.Generate(ctx, "prompt", GenerateOptions{}); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Canceled Context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		g := NewFallbackGenerator(&fakeModels{}, cfg, quietLogger())
		if _, err := g.Generate(ctx, "prompt", GenerateOptions{}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestStripFences(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{name: "no fences", in: "  <p>Hi</p> ", want: "<p>Hi</p>"},
		{name: "html fence", in: "```html\n<p>Hi</p>\n```", want: "<p>Hi</p>"},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", in: "```\ntext\n```", want: "text"},
		{name: "only fences", in: "```\n```", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenAIClient(t *testing.T) {
	t.Run("Missing Key", func(t *testing.T) {
		if _, err := NewGenAIClient(context.Background(), shared.AIConfig{}); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("GenerateContent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/v1alpha/models/gemini-2.0-flash:generateContent") {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"drafted"}]}}]}`))
		}))
		defer server.Close()

		client, err := NewGenAIClient(context.Background(), shared.AIConfig{APIKey: "k", BaseURL: server.URL + "/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		text, err := client.GenerateContent(context.Background(), "gemini-2.0-flash", "hi", GenerateOptions{Temperature: 0.7, MaxOutputTokens: 500})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != "drafted" {
			t.Errorf("expected drafted, got %q", text)
		}
	})
}
