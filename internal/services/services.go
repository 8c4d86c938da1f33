// package services wraps the external providers the backend talks to
//
// Stripe (two accounts), Resend, Firebase Auth, Gemini, Redis
package services

import (
	"context"
	"time"
)

// Billing is the subset of the billing API used by the placement handoff.
//
// Cancellation runs against the Rep retainer account; every other call runs against the CPF account.
type Billing interface {
	// CancelSubscription cancels a retainer subscription on the Rep account.
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// CreateCustomer creates a customer on the CPF account and returns its ID.
	CreateCustomer(ctx context.Context, email, name string) (string, error)

	// ClonePaymentMethod copies a Rep payment method onto a CPF customer and returns the new ID.
	ClonePaymentMethod(ctx context.Context, paymentMethodID, customerID string) (string, error)

	// CreateSubscription attaches the payment method, makes it the customer's default and subscribes
	// the customer to the price. Returns the subscription ID.
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error)
}

// SubscriptionRequest describes an ISA subscription on the CPF account.
type SubscriptionRequest struct {
	CustomerID         string
	PaymentMethodID    string
	PriceID            string
	BillingCycleAnchor time.Time
}

// Mailer sends one transactional email and returns the provider's message ID.
type Mailer interface {
	Send(ctx context.Context, email Email) (string, error)
}

// Email is a single outgoing message. An empty From uses the configured default.
type Email struct {
	From    string
	To      string
	ReplyTo string
	Bcc     []string
	Subject string
	HTML    string
}

// Identity is the subset of the identity provider used by the callable endpoints.
type Identity interface {
	// VerifyIDToken checks a client ID token and returns the caller it belongs to.
	VerifyIDToken(ctx context.Context, token string) (*Caller, error)

	// GetUserByEmail returns [shared.ErrUserNotFound] when no account has the email.
	GetUserByEmail(ctx context.Context, email string) (*AuthUser, error)

	// CreateUser creates an account. An empty UID lets the provider pick one.
	CreateUser(ctx context.Context, user NewAuthUser) (string, error)

	// ResetPassword sets a new password and re-enables the account.
	ResetPassword(ctx context.Context, uid, password string) error
}

// Caller is the authenticated principal of a request.
type Caller struct {
	UID   string
	Email string
}

// AuthUser is an account as the identity provider sees it.
type AuthUser struct {
	UID         string
	Email       string
	DisplayName string
	Disabled    bool
}

// NewAuthUser holds the fields for [Identity.CreateUser].
type NewAuthUser struct {
	UID           string
	Email         string
	Password      string
	DisplayName   string
	EmailVerified bool
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// GenerateOptions tunes one generation. Zero values fall back to the generator's defaults.
type GenerateOptions struct {
	Models          []string
	Temperature     float32
	MaxOutputTokens int32
	JSON            bool
}

// Locker guards a key against concurrent holders.
type Locker interface {
	// Acquire returns [shared.ErrLockHeld] when another holder has key.
	// The returned release func is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
