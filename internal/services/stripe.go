package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v83"

	"github.com/repteam/rep/internal/shared"
)

// StripeBilling implements [Billing] across the Rep and CPF Stripe accounts.
type StripeBilling struct {
	rep *stripe.Client
	cpf *stripe.Client
}

// NewStripeBilling creates clients for both accounts. Both keys are required.
func NewStripeBilling(repKey, cpfKey string) (*StripeBilling, error) {
	if repKey == "" || cpfKey == "" {
		return nil, fmt.Errorf("%w: stripe secret keys for rep and cpf accounts", shared.ErrMissingCredentials)
	}
	return &StripeBilling{rep: stripe.NewClient(repKey), cpf: stripe.NewClient(cpfKey)}, nil
}

func (s *StripeBilling) CancelSubscription(ctx context.Context, subscriptionID string) error {
	_, err := s.rep.V1Subscriptions.Cancel(ctx, subscriptionID, &stripe.SubscriptionCancelParams{})
	return wrapStripeError("cancel subscription", err)
}

func (s *StripeBilling) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	c, err := s.cpf.V1Customers.Create(ctx, &stripe.CustomerCreateParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	})
	if err != nil {
		return "", wrapStripeError("create customer", err)
	}
	return c.ID, nil
}

// ClonePaymentMethod confirms the payment method exists on the Rep account, then creates
// a copy on the CPF account owned by customerID.
func (s *StripeBilling) ClonePaymentMethod(ctx context.Context, paymentMethodID, customerID string) (string, error) {
	if _, err := s.rep.V1PaymentMethods.Retrieve(ctx, paymentMethodID, &stripe.PaymentMethodRetrieveParams{}); err != nil {
		return "", wrapStripeError("retrieve payment method", err)
	}

	pm, err := s.cpf.V1PaymentMethods.Create(ctx, &stripe.PaymentMethodCreateParams{
		Customer:      stripe.String(customerID),
		PaymentMethod: stripe.String(paymentMethodID),
	})
	if err != nil {
		return "", wrapStripeError("clone payment method", err)
	}
	return pm.ID, nil
}

func (s *StripeBilling) CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error) {
	_, err := s.cpf.V1PaymentMethods.Attach(ctx, req.PaymentMethodID, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(req.CustomerID),
	})
	if err != nil {
		return "", wrapStripeError("attach payment method", err)
	}

	_, err = s.cpf.V1Customers.Update(ctx, req.CustomerID, &stripe.CustomerUpdateParams{
		InvoiceSettings: &stripe.CustomerUpdateInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(req.PaymentMethodID),
		},
	})
	if err != nil {
		return "", wrapStripeError("set default payment method", err)
	}

	sub, err := s.cpf.V1Subscriptions.Create(ctx, &stripe.SubscriptionCreateParams{
		Customer:           stripe.String(req.CustomerID),
		Items:              []*stripe.SubscriptionCreateItemParams{{Price: stripe.String(req.PriceID)}},
		BillingCycleAnchor: stripe.Int64(req.BillingCycleAnchor.Unix()),
		ProrationBehavior:  stripe.String("none"),
	})
	if err != nil {
		return "", wrapStripeError("create subscription", err)
	}
	return sub.ID, nil
}

// StripeError carries the useful parts of a [stripe.Error].
type StripeError struct {
	Op         string
	Code       string
	Message    string
	HTTPStatus int
	RequestID  string
	err        error
}

func (e *StripeError) Error() string {
	return fmt.Sprintf("stripe %s: %s (code=%s status=%d)", e.Op, e.Message, e.Code, e.HTTPStatus)
}

func (e *StripeError) Unwrap() []error { return []error{shared.ErrBillingRequest, e.err} }

// wrapStripeError converts a Stripe SDK error into a [StripeError] tagged with the failed operation.
func wrapStripeError(op string, err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: stripe %s: %w", shared.ErrBillingRequest, op, err)
	}

	return &StripeError{
		Op:         op,
		Code:       string(stripeErr.Code),
		Message:    stripeErr.Msg,
		HTTPStatus: stripeErr.HTTPStatusCode,
		RequestID:  stripeErr.RequestID,
		err:        err,
	}
}
