package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/repteam/rep/internal/models"
	"github.com/repteam/rep/internal/shared"
)

const handoffColumns = `
	id, sequence, user_id, subscription_doc_id, outcome, partial, last_step,
	cpf_customer_id, cpf_payment_method_id, cpf_subscription_id, error_message,
	steps_json, created_at, updated_at, deleted_at
`

// HandoffRepository implements models.Repository[*models.HandoffReport] for placement handoffs.
//
// Partial handoffs are the ones an operator has to finish by hand, see [HandoffRepository.ListPartial].
type HandoffRepository struct {
	db *sql.DB
}

// NewHandoffRepository creates a new HandoffRepository with the given database connection
func NewHandoffRepository(db *sql.DB) *HandoffRepository {
	return &HandoffRepository{db: db}
}

// Create inserts a handoff report with generated ID and sequence
func (r *HandoffRepository) Create(h *models.HandoffReport) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	steps, err := h.StepsJSON()
	if err != nil {
		return err
	}

	sequence, err := NextSequence(r.db, "handoffs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	h.SetID(shared.GenerateID())
	h.SetSequence(sequence)

	query := `
		INSERT INTO handoffs (
			id, sequence, user_id, subscription_doc_id, outcome, partial, last_step,
			cpf_customer_id, cpf_payment_method_id, cpf_subscription_id, error_message,
			steps_json, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		h.ID(),
		sequence,
		h.UserID(),
		nullString(h.SubscriptionDocID()),
		h.Outcome(),
		h.Partial(),
		nullString(h.LastStep()),
		nullString(h.CPFCustomerID()),
		nullString(h.CPFPaymentMethodID()),
		nullString(h.CPFSubscriptionID()),
		nullString(h.ErrorMessage()),
		steps,
		h.CreatedAt(),
		h.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert handoff: %w", err)
	}

	return nil
}

// Get retrieves a handoff by ID, excluding soft-deleted rows
func (r *HandoffRepository) Get(id string) (*models.HandoffReport, error) {
	query := `SELECT ` + handoffColumns + ` FROM handoffs WHERE id = ? AND deleted_at IS NULL`

	h, err := r.scan(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: handoff %s", shared.ErrNotFound, id)
	}
	return h, err
}

// Update rewrites the outcome, identifiers and steps of a handoff, e.g. after manual follow-up
func (r *HandoffRepository) Update(h *models.HandoffReport) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	steps, err := h.StepsJSON()
	if err != nil {
		return err
	}

	now := time.Now()
	h.SetUpdatedAt(now)

	query := `
		UPDATE handoffs
		SET outcome = ?, partial = ?, cpf_customer_id = ?, cpf_payment_method_id = ?,
			cpf_subscription_id = ?, error_message = ?, steps_json = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		h.Outcome(),
		h.Partial(),
		nullString(h.CPFCustomerID()),
		nullString(h.CPFPaymentMethodID()),
		nullString(h.CPFSubscriptionID()),
		nullString(h.ErrorMessage()),
		steps,
		now,
		h.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update handoff: %w", err)
	}

	return expectRow(result, "handoff", h.ID())
}

// Delete soft-deletes a handoff by ID
func (r *HandoffRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE handoffs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete handoff: %w", err)
	}
	return expectRow(result, "handoff", id)
}

// List retrieves handoffs newest first. Supported criteria are "user_id", "outcome", "partial" and "limit".
func (r *HandoffRepository) List(criteria map[string]any) ([]*models.HandoffReport, error) {
	query := `SELECT ` + handoffColumns + ` FROM handoffs WHERE deleted_at IS NULL`
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	if outcome, ok := criteria["outcome"].(string); ok && outcome != "" {
		query += " AND outcome = ?"
		args = append(args, outcome)
	}

	if partial, ok := criteria["partial"].(bool); ok {
		query += " AND partial = ?"
		args = append(args, partial)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query handoffs: %w", err)
	}
	defer rows.Close()

	var handoffs []*models.HandoffReport
	for rows.Next() {
		h, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		handoffs = append(handoffs, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return handoffs, nil
}

// ListPartial returns handoffs that cancelled the retainer but never finished the CPF subscription
func (r *HandoffRepository) ListPartial() ([]*models.HandoffReport, error) {
	return r.List(map[string]any{"partial": true})
}

func (r *HandoffRepository) scan(row scanner) (*models.HandoffReport, error) {
	var (
		id                 string
		sequence           int
		userID             string
		subscriptionDocID  sql.NullString
		outcome            string
		partial            bool
		lastStep           sql.NullString
		cpfCustomerID      sql.NullString
		cpfPaymentMethodID sql.NullString
		cpfSubscriptionID  sql.NullString
		errorMessage       sql.NullString
		stepsJSON          string
		createdAt          time.Time
		updatedAt          time.Time
		deletedAt          sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &userID, &subscriptionDocID, &outcome, &partial, &lastStep,
		&cpfCustomerID, &cpfPaymentMethodID, &cpfSubscriptionID, &errorMessage,
		&stepsJSON, &createdAt, &updatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan handoff: %w", err)
	}

	h := models.NewHandoffReport(sequence, userID)
	h.SetID(id)
	h.SetSubscriptionDocID(subscriptionDocID.String)
	h.SetOutcome(outcome)
	h.SetLastStep(lastStep.String)
	h.SetCPFCustomerID(cpfCustomerID.String)
	h.SetCPFPaymentMethodID(cpfPaymentMethodID.String)
	h.SetCPFSubscriptionID(cpfSubscriptionID.String)
	h.SetErrorMessage(errorMessage.String)
	h.SetCreatedAt(createdAt)
	h.SetUpdatedAt(updatedAt)
	if err := h.SetStepsJSON(stepsJSON); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		h.SetDeletedAt(&deletedAt.Time)
	}

	return h, nil
}
