package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
	tu "github.com/repteam/rep/internal/testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestToCallableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantMsg  string
	}{
		{
			name:     "Invalid Argument Drops Prefix",
			err:      fmt.Errorf("%w: Missing required fields.", shared.ErrInvalidArgument),
			wantCode: CodeInvalidArgument,
			wantMsg:  "Missing required fields.",
		},
		{
			name:     "Not Authenticated",
			err:      fmt.Errorf("%w: expired", shared.ErrNotAuthenticated),
			wantCode: CodeUnauthenticated,
			wantMsg:  msgUnauthenticated,
		},
		{
			name:     "User Not Found",
			err:      fmt.Errorf("%w: ada@example.com", shared.ErrUserNotFound),
			wantCode: CodeNotFound,
			wantMsg:  "user not found: ada@example.com",
		},
		{
			name:     "Email Send Hides Provider Detail",
			err:      fmt.Errorf("%w: 422 domain not verified", shared.ErrEmailSend),
			wantCode: CodeInternal,
			wantMsg:  msgEmailFailed,
		},
		{
			name:     "Explicit Callable Error Passes Through",
			err:      fmt.Errorf("wrapped: %w", NewCallableError(CodeResourceExhausted, "slow down")),
			wantCode: CodeResourceExhausted,
			wantMsg:  "slow down",
		},
		{
			name:     "Anything Else Is Internal",
			err:      errors.New("boom"),
			wantCode: CodeInternal,
			wantMsg:  "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToCallableError(tt.err)
			if got.Code != tt.wantCode || got.Message != tt.wantMsg {
				t.Errorf("ToCallableError() = %s %q, want %s %q", got.Code, got.Message, tt.wantCode, tt.wantMsg)
			}
		})
	}
}

func TestCallableError_HTTPStatus(t *testing.T) {
	tests := map[string]int{
		CodeUnauthenticated:   http.StatusUnauthorized,
		CodeInvalidArgument:   http.StatusBadRequest,
		CodeNotFound:          http.StatusNotFound,
		CodeResourceExhausted: http.StatusTooManyRequests,
		CodeInternal:          http.StatusInternalServerError,
		"UNKNOWN":             http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := (&CallableError{Code: code}).HTTPStatus(); got != want {
			t.Errorf("%s: HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}

func TestDecodeCallable(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "Data Object", body: `{"data":{"name":"ada"}}`, want: "ada"},
		{name: "Null Data", body: `{"data":null}`},
		{name: "Missing Data", body: `{}`},
		{name: "Empty Body", body: ``},
		{name: "Not JSON", body: `name=ada`, wantErr: true},
		{name: "Wrong Data Type", body: `{"data":{"name":5}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/x", strings.NewReader(tt.body))
			var got payload
			err := decodeCallable(req, &got)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeCallable() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Name != tt.want {
				t.Errorf("Name = %q, want %q", got.Name, tt.want)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	identity := tu.NewMockIdentity()
	identity.Tokens["good"] = &services.Caller{UID: "u1", Email: "u1@example.com"}

	var seen *services.Caller
	handler := Authenticate(identity, log.New(io.Discard))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CallerFrom(r.Context())
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUID    string
	}{
		{name: "Anonymous", header: "", wantStatus: http.StatusOK},
		{name: "Valid Token", header: "Bearer good", wantStatus: http.StatusOK, wantUID: "u1"},
		{name: "Unknown Token", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
		{name: "Wrong Scheme", header: "Basic good", wantStatus: http.StatusUnauthorized},
		{name: "Empty Bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, "/v1/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var uid string
			if seen != nil {
				uid = seen.UID
			}
			if uid != tt.wantUID {
				t.Errorf("caller uid = %q, want %q", uid, tt.wantUID)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.repteam.com"})(okHandler())

	t.Run("Preflight From Allowed Origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/provisionClient", nil)
		req.Header.Set("Origin", "https://app.repteam.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.repteam.com" {
			t.Errorf("Allow-Origin = %q", got)
		}
	})

	t.Run("Other Origin Gets No Headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/provisionClient", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("Wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		CORS([]string{"*"})(okHandler()).ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Allow-Origin = %q", got)
		}
	})
}

func TestEventSecret(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
	}{
		{name: "Matching Secret", secret: "abc", header: "abc", wantStatus: http.StatusOK},
		{name: "Wrong Secret", secret: "abc", header: "abd", wantStatus: http.StatusUnauthorized},
		{name: "Missing Header", secret: "abc", wantStatus: http.StatusUnauthorized},
		{name: "Unconfigured Secret", secret: "", header: "", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/events/x", nil)
			if tt.header != "" {
				req.Header.Set(EventSecretHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			EventSecret(tt.secret)(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRecover(t *testing.T) {
	handler := Recover(log.New(io.Discard))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), CodeInternal) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestLogging(t *testing.T) {
	var out strings.Builder
	logger := log.NewWithOptions(&out, log.Options{Formatter: log.LogfmtFormatter})
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	line := out.String()
	for _, want := range []string{"path=/healthz", "status=418", "bytes=15"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	t.Run("Keys Are Limited Separately", func(t *testing.T) {
		l := NewRateLimiter(1, 2)
		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		l.now = func() time.Time { return now }

		if !l.Allow("a") || !l.Allow("a") {
			t.Fatal("burst of 2 should be allowed")
		}
		if l.Allow("a") {
			t.Error("third request inside a second should be limited")
		}
		if !l.Allow("b") {
			t.Error("other key should not be limited")
		}

		now = now.Add(time.Second)
		if !l.Allow("a") {
			t.Error("token should refill after a second")
		}
	})

	t.Run("Zero Rate Disables Limiting", func(t *testing.T) {
		l := NewRateLimiter(0, 0)
		for range 100 {
			if !l.Allow("a") {
				t.Fatal("disabled limiter rejected a request")
			}
		}
	})

	t.Run("Anonymous Callers Keyed By Forwarded IP", func(t *testing.T) {
		l := NewRateLimiter(0.001, 1)
		handler := l.Middleware(okHandler())

		send := func(ip string) int {
			req := httptest.NewRequest(http.MethodPost, "/v1/runAtsSimulation", nil)
			req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			return rec.Code
		}

		if got := send("203.0.113.7"); got != http.StatusOK {
			t.Errorf("first = %d, want 200", got)
		}
		if got := send("203.0.113.7"); got != http.StatusTooManyRequests {
			t.Errorf("second = %d, want 429", got)
		}
		if got := send("198.51.100.2"); got != http.StatusOK {
			t.Errorf("other ip = %d, want 200", got)
		}
	})
}

func TestMuxRouter(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	r := NewRouter()
	r.Use(mark("root"))
	g := r.Group("/v1", mark("group"))
	g.Handle(http.MethodPost, "/ping", okHandler())

	t.Run("Middleware Runs Root First", func(t *testing.T) {
		order = nil
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ping", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if strings.Join(order, ",") != "root,group" {
			t.Errorf("order = %v", order)
		}
	})

	t.Run("Wrong Method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("Unknown Path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

		if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), CodeNotFound) {
			t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
	})
}
