package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Handoff outcomes.
const (
	OutcomeSkipped   = "skipped"
	OutcomeAborted   = "aborted"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Step statuses.
const (
	StepPending = "pending"
	StepDone    = "done"
	StepFailed  = "failed"
)

// Placement handoff steps, in execution order.
const (
	StepLookup             = "lookup"
	StepCancelRetainer     = "cancel_retainer"
	StepCreateCustomer     = "create_customer"
	StepClonePaymentMethod = "clone_payment_method"
	StepCreateSubscription = "create_subscription"
	StepUpdateRecord       = "update_record"
)

// HandoffSteps lists the placement handoff steps in order.
var HandoffSteps = []string{
	StepLookup,
	StepCancelRetainer,
	StepCreateCustomer,
	StepClonePaymentMethod,
	StepCreateSubscription,
	StepUpdateRecord,
}

// HandoffStep is the state of one step of a handoff.
type HandoffStep struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HandoffReport is the outcome of one placement-to-billing handoff.
//
// A report is partial when the sequence stopped after the retainer was cancelled:
// the client is then no longer billed on the Rep account but not yet on the CPF account.
type HandoffReport struct {
	timestamps
	userID             string
	subscriptionDocID  string
	outcome            string
	lastStep           string
	cpfCustomerID      string
	cpfPaymentMethodID string
	cpfSubscriptionID  string
	errorMessage       string
	steps              []HandoffStep
}

// NewHandoffReport creates a report for userID with every step pending.
func NewHandoffReport(sequence int, userID string) *HandoffReport {
	steps := make([]HandoffStep, len(HandoffSteps))
	for i, name := range HandoffSteps {
		steps[i] = HandoffStep{Name: name, Status: StepPending}
	}
	return &HandoffReport{timestamps: newTimestamps(sequence), userID: userID, steps: steps}
}

func (h *HandoffReport) UserID() string             { return h.userID }
func (h *HandoffReport) SubscriptionDocID() string  { return h.subscriptionDocID }
func (h *HandoffReport) Outcome() string            { return h.outcome }
func (h *HandoffReport) LastStep() string           { return h.lastStep }
func (h *HandoffReport) CPFCustomerID() string      { return h.cpfCustomerID }
func (h *HandoffReport) CPFPaymentMethodID() string { return h.cpfPaymentMethodID }
func (h *HandoffReport) CPFSubscriptionID() string  { return h.cpfSubscriptionID }
func (h *HandoffReport) ErrorMessage() string       { return h.errorMessage }
func (h *HandoffReport) Steps() []HandoffStep       { return slices.Clone(h.steps) }

func (h *HandoffReport) SetSubscriptionDocID(id string)  { h.subscriptionDocID = id }
func (h *HandoffReport) SetOutcome(outcome string)       { h.outcome = outcome }
func (h *HandoffReport) SetLastStep(step string)         { h.lastStep = step }
func (h *HandoffReport) SetCPFCustomerID(id string)      { h.cpfCustomerID = id }
func (h *HandoffReport) SetCPFPaymentMethodID(id string) { h.cpfPaymentMethodID = id }
func (h *HandoffReport) SetCPFSubscriptionID(id string)  { h.cpfSubscriptionID = id }
func (h *HandoffReport) SetErrorMessage(msg string)      { h.errorMessage = msg }
func (h *HandoffReport) SetSteps(steps []HandoffStep)    { h.steps = steps }

// Done marks step as completed.
func (h *HandoffReport) Done(step string) {
	h.mark(step, StepDone, "")
	h.lastStep = step
}

// Fail marks step as failed and records err as the report's error.
func (h *HandoffReport) Fail(step string, err error) {
	h.mark(step, StepFailed, err.Error())
	h.errorMessage = err.Error()
}

func (h *HandoffReport) mark(step, status, msg string) {
	for i := range h.steps {
		if h.steps[i].Name == step {
			h.steps[i].Status = status
			h.steps[i].Error = msg
			return
		}
	}
	h.steps = append(h.steps, HandoffStep{Name: step, Status: status, Error: msg})
}

// Completed returns the names of the steps marked done.
func (h *HandoffReport) Completed() []string {
	var done []string
	for _, s := range h.steps {
		if s.Status == StepDone {
			done = append(done, s.Name)
		}
	}
	return done
}

// Partial reports whether the handoff failed after the retainer subscription was cancelled.
func (h *HandoffReport) Partial() bool {
	if h.outcome != OutcomeFailed {
		return false
	}
	for _, s := range h.steps {
		if s.Name == StepCancelRetainer {
			return s.Status == StepDone
		}
	}
	return false
}

// StepsJSON encodes the step list for storage.
func (h *HandoffReport) StepsJSON() (string, error) {
	b, err := json.Marshal(h.steps)
	if err != nil {
		return "", fmt.Errorf("failed to encode handoff steps: %w", err)
	}
	return string(b), nil
}

// SetStepsJSON decodes a stored step list.
func (h *HandoffReport) SetStepsJSON(raw string) error {
	var steps []HandoffStep
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return fmt.Errorf("failed to decode handoff steps: %w", err)
	}
	h.steps = steps
	return nil
}

func (h *HandoffReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID                 string        `json:"id,omitempty"`
		UserID             string        `json:"userId"`
		SubscriptionDocID  string        `json:"subscriptionDocId,omitempty"`
		Outcome            string        `json:"outcome"`
		Partial            bool          `json:"partial"`
		LastStep           string        `json:"lastStep,omitempty"`
		CPFCustomerID      string        `json:"cpfCustomerId,omitempty"`
		CPFPaymentMethodID string        `json:"cpfPaymentMethodId,omitempty"`
		CPFSubscriptionID  string        `json:"cpfSubscriptionId,omitempty"`
		Error              string        `json:"error,omitempty"`
		Steps              []HandoffStep `json:"steps"`
		CreatedAt          time.Time     `json:"createdAt"`
	}{
		ID:                 h.id,
		UserID:             h.userID,
		SubscriptionDocID:  h.subscriptionDocID,
		Outcome:            h.outcome,
		Partial:            h.Partial(),
		LastStep:           h.lastStep,
		CPFCustomerID:      h.cpfCustomerID,
		CPFPaymentMethodID: h.cpfPaymentMethodID,
		CPFSubscriptionID:  h.cpfSubscriptionID,
		Error:              h.errorMessage,
		Steps:              h.steps,
		CreatedAt:          h.createdAt,
	})
}

func (h *HandoffReport) Validate() error {
	if h.userID == "" {
		return fmt.Errorf("user ID is required")
	}
	switch h.outcome {
	case OutcomeSkipped, OutcomeAborted, OutcomeCompleted, OutcomeFailed:
	default:
		return fmt.Errorf("invalid handoff outcome: %q", h.outcome)
	}
	return nil
}
