package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/repteam/rep/internal/models"
	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
	"github.com/repteam/rep/internal/store"
)

const (
	statusPlaced      = "placed"
	placementLockTTL  = 5 * time.Minute
	defaultISAPriceID = "price_isa_placeholder"
)

// PlacementEvent is an update of users/{UserID}.
type PlacementEvent struct {
	UserID string
	Before map[string]any
	After  map[string]any
}

// IsPlacementTransition reports whether status moved from anything other than placed to placed.
func IsPlacementTransition(before, after map[string]any) bool {
	b := store.Doc{Data: before}.String("status")
	a := store.Doc{Data: after}.String("status")
	return b != statusPlaced && a == statusPlaced
}

// PlacementLockKey is the Redis key guarding one user's handoff.
func PlacementLockKey(userID string) string { return "rep:placement:" + userID }

// PlaceClient moves a placed client from the retainer subscription on the Rep account to an ISA
// subscription on the CPF account.
//
// The steps run strictly in order and stop at the first error. Nothing is rolled back: when the
// retainer was already cancelled the report is partial and is logged and stored for follow-up.
// Any update that is not a transition to placed returns a skipped report without touching billing.
func (e *Engine) PlaceClient(ctx context.Context, ev PlacementEvent) (*models.HandoffReport, error) {
	report := models.NewHandoffReport(0, ev.UserID)
	logger := e.logger.With("user", ev.UserID)

	if !IsPlacementTransition(ev.Before, ev.After) {
		report.SetOutcome(models.OutcomeSkipped)
		logger.Debug("not a placement transition")
		return report, nil
	}
	if ev.UserID == "" {
		return nil, fmt.Errorf("%w: userId", shared.ErrMissingField)
	}
	if e.billing == nil {
		return nil, unavailable("billing")
	}

	ttl := placementLockTTL
	if e.config.Redis.LockTTLSec > 0 {
		ttl = time.Duration(e.config.Redis.LockTTLSec) * time.Second
	}

	release, err := e.locker.Acquire(ctx, PlacementLockKey(ev.UserID), ttl)
	if errors.Is(err, shared.ErrLockHeld) {
		logger.Warn("placement handoff already running", "err", err)
		report.SetOutcome(models.OutcomeSkipped)
		report.SetErrorMessage(err.Error())
		return report, nil
	}
	if err != nil {
		report.Fail(models.StepLookup, err)
		report.SetOutcome(models.OutcomeAborted)
		e.saveHandoff(report)
		return report, fmt.Errorf("placement lock: %w", err)
	}
	defer release()

	logger.Info("processing placement")
	err = e.runHandoff(ctx, ev, report)

	switch {
	case err == nil:
		logger.Info("placement handoff complete", "cpf_customer", report.CPFCustomerID(), "cpf_subscription", report.CPFSubscriptionID())
	case report.Partial():
		logger.Error("placement handoff stopped after retainer cancel",
			"partial", true, "completed", report.Completed(), "failed_step", failedStep(report), "err", err)
	default:
		logger.Error("placement handoff failed", "outcome", report.Outcome(), "err", err)
	}

	e.saveHandoff(report)
	return report, err
}

func (e *Engine) runHandoff(ctx context.Context, ev PlacementEvent, report *models.HandoffReport) error {
	fail := func(step, outcome string, err error) error {
		report.Fail(step, err)
		report.SetOutcome(outcome)
		return err
	}

	docs, err := e.store.Find(ctx, store.Query{
		Collection: store.FinancialSubscriptions,
		Where:      []store.Filter{store.Eq("userId", store.Ref{Collection: store.Users, ID: ev.UserID})},
		Limit:      1,
	})
	if err != nil {
		return fail(models.StepLookup, models.OutcomeFailed, fmt.Errorf("failed to look up subscription: %w", err))
	}
	if len(docs) == 0 {
		return fail(models.StepLookup, models.OutcomeAborted,
			fmt.Errorf("%w: no financial subscription found for user %s", shared.ErrNotFound, ev.UserID))
	}

	sub := docs[0]
	report.SetSubscriptionDocID(sub.ID)
	repCustomerID := sub.String("stripeCustomerId")
	repSubscriptionID := sub.String("stripeSubscriptionId")
	repPaymentMethodID := sub.String("defaultPaymentMethodId")
	if repCustomerID == "" || repSubscriptionID == "" || repPaymentMethodID == "" {
		return fail(models.StepLookup, models.OutcomeAborted,
			fmt.Errorf("%w: missing Stripe data in subscription %s", shared.ErrMissingField, sub.ID))
	}
	report.Done(models.StepLookup)

	if err := e.billing.CancelSubscription(ctx, repSubscriptionID); err != nil {
		return fail(models.StepCancelRetainer, models.OutcomeFailed, err)
	}
	report.Done(models.StepCancelRetainer)

	after := store.Doc{Data: ev.After}
	email := shared.FirstNonEmpty(after.String("profile.email"), fmt.Sprintf("user_%s@example.com", ev.UserID))
	name := shared.FirstNonEmpty(after.String("profile.name"), "Valued Client")

	customerID, err := e.billing.CreateCustomer(ctx, email, name)
	if err != nil {
		return fail(models.StepCreateCustomer, models.OutcomeFailed, err)
	}
	report.SetCPFCustomerID(customerID)
	report.Done(models.StepCreateCustomer)

	paymentMethodID, err := e.billing.ClonePaymentMethod(ctx, repPaymentMethodID, customerID)
	if err != nil {
		return fail(models.StepClonePaymentMethod, models.OutcomeFailed, err)
	}
	report.SetCPFPaymentMethodID(paymentMethodID)
	report.Done(models.StepClonePaymentMethod)

	anchorDays := e.config.Billing.AnchorDays
	if anchorDays <= 0 {
		anchorDays = 30
	}
	subscriptionID, err := e.billing.CreateSubscription(ctx, services.SubscriptionRequest{
		CustomerID:         customerID,
		PaymentMethodID:    paymentMethodID,
		PriceID:            shared.FirstNonEmpty(e.config.Billing.ISAPriceID, defaultISAPriceID),
		BillingCycleAnchor: e.now().Add(time.Duration(anchorDays) * 24 * time.Hour),
	})
	if err != nil {
		return fail(models.StepCreateSubscription, models.OutcomeFailed, err)
	}
	report.SetCPFSubscriptionID(subscriptionID)
	report.Done(models.StepCreateSubscription)

	err = e.store.Update(ctx, store.FinancialSubscriptions, sub.ID, map[string]any{
		"plan":                    "isa_agreement",
		"status":                  "active",
		"cpfStripeCustomerId":     customerID,
		"cpfStripeSubscriptionId": subscriptionID,
		"updatedAt":               store.ServerTimestamp,
	})
	if err != nil {
		return fail(models.StepUpdateRecord, models.OutcomeFailed, fmt.Errorf("failed to update subscription %s: %w", sub.ID, err))
	}
	report.Done(models.StepUpdateRecord)
	report.SetOutcome(models.OutcomeCompleted)
	return nil
}

func (e *Engine) saveHandoff(report *models.HandoffReport) {
	if e.handoffs == nil {
		return
	}
	if err := e.handoffs.Create(report); err != nil {
		e.logger.Warn("failed to record handoff", "user", report.UserID(), "err", err)
	}
}

func failedStep(report *models.HandoffReport) string {
	for _, s := range report.Steps() {
		if s.Status == models.StepFailed {
			return s.Name
		}
	}
	return ""
}
