// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
)

// MockBilling is a test double for [services.Billing].
//
// Each Err field fails the matching call. Calls are recorded in order so tests can assert
// which handoff steps ran.
type MockBilling struct {
	mu sync.Mutex

	CancelErr         error
	CreateCustomerErr error
	CloneErr          error
	SubscribeErr      error

	Calls         []string
	Subscriptions []services.SubscriptionRequest
}

func (m *MockBilling) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

func (m *MockBilling) CancelSubscription(ctx context.Context, subscriptionID string) error {
	m.record("cancel:" + subscriptionID)
	return m.CancelErr
}

func (m *MockBilling) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	m.record("customer:" + email)
	if m.CreateCustomerErr != nil {
		return "", m.CreateCustomerErr
	}
	return "cus_mock", nil
}

func (m *MockBilling) ClonePaymentMethod(ctx context.Context, paymentMethodID, customerID string) (string, error) {
	m.record("clone:" + paymentMethodID)
	if m.CloneErr != nil {
		return "", m.CloneErr
	}
	return "pm_clone", nil
}

func (m *MockBilling) CreateSubscription(ctx context.Context, req services.SubscriptionRequest) (string, error) {
	m.record("subscribe:" + req.PriceID)
	if m.SubscribeErr != nil {
		return "", m.SubscribeErr
	}
	m.mu.Lock()
	m.Subscriptions = append(m.Subscriptions, req)
	m.mu.Unlock()
	return "sub_isa", nil
}

// CallList returns a copy of the recorded calls.
func (m *MockBilling) CallList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

// MockMailer is a test double for [services.Mailer]. FailFor fails sends to a single recipient.
type MockMailer struct {
	mu sync.Mutex

	Err     error
	FailFor string
	Sent    []services.Email
}

func (m *MockMailer) Send(ctx context.Context, email services.Email) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.FailFor != "" && email.To == m.FailFor {
		return "", fmt.Errorf("%w: mock rejected %s", shared.ErrEmailSend, email.To)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, email)
	return fmt.Sprintf("email_%d", len(m.Sent)), nil
}

// SentTo returns the emails addressed to recipient.
func (m *MockMailer) SentTo(recipient string) []services.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []services.Email
	for _, e := range m.Sent {
		if e.To == recipient {
			out = append(out, e)
		}
	}
	return out
}

// MockIdentity is a test double for [services.Identity] backed by an in-memory user table.
type MockIdentity struct {
	mu sync.Mutex

	// Tokens maps ID tokens to callers; anything else fails verification.
	Tokens map[string]*services.Caller
	Users  map[string]*services.AuthUser

	LookupErr error
	CreateErr error
	ResetErr  error

	Created []services.NewAuthUser
	Resets  map[string]string
}

func NewMockIdentity() *MockIdentity {
	return &MockIdentity{
		Tokens: map[string]*services.Caller{},
		Users:  map[string]*services.AuthUser{},
		Resets: map[string]string{},
	}
}

func (m *MockIdentity) VerifyIDToken(ctx context.Context, idToken string) (*services.Caller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.Tokens[idToken]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: unknown token", shared.ErrNotAuthenticated)
}

func (m *MockIdentity) GetUserByEmail(ctx context.Context, email string) (*services.AuthUser, error) {
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, email)
}

func (m *MockIdentity) CreateUser(ctx context.Context, user services.NewAuthUser) (string, error) {
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	uid := user.UID
	if uid == "" {
		uid = fmt.Sprintf("uid_%d", len(m.Users)+1)
	}
	m.Users[uid] = &services.AuthUser{UID: uid, Email: user.Email, DisplayName: user.DisplayName}
	m.Created = append(m.Created, user)
	return uid, nil
}

func (m *MockIdentity) ResetPassword(ctx context.Context, uid, password string) error {
	if m.ResetErr != nil {
		return m.ResetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Users[uid]; !ok {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, uid)
	}
	m.Resets[uid] = password
	return nil
}

// AddUser registers an existing auth account.
func (m *MockIdentity) AddUser(uid, email, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users[uid] = &services.AuthUser{UID: uid, Email: email, DisplayName: name}
}

// MockGenerator is a test double for [services.Generator] returning a fixed Response.
type MockGenerator struct {
	mu sync.Mutex

	Response string
	Err      error
	Prompts  []string
	Options  []services.GenerateOptions
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string, opts services.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	m.Options = append(m.Options, opts)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// MockLocker is an in-process [services.Locker]. Held keys fail with [shared.ErrLockHeld].
type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool

	Err      error
	Acquired []string
}

func (m *MockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = map[string]bool{}
	}
	if m.held[key] {
		return nil, fmt.Errorf("%w: %s", shared.ErrLockHeld, key)
	}
	m.held[key] = true
	m.Acquired = append(m.Acquired, key)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

// Hold marks key as held by someone else.
func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = map[string]bool{}
	}
	m.held[key] = true
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper returns a canned response or error for every request
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// MustWriteFile writes content to path, failing the test on error.
func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}
