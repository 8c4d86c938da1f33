// package models defines the persisted ledger entities for the rep backend
package models

import (
	"time"
)

// Model defines the base interface for all persistent models in the run ledger.
// Implementations include TaskRun and HandoffReport.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// timestamps holds the lifecycle fields shared by every ledger model.
type timestamps struct {
	id        string
	sequence  int
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

func newTimestamps(sequence int) timestamps {
	now := time.Now()
	return timestamps{sequence: sequence, createdAt: now, updatedAt: now}
}

func (t *timestamps) ID() string                 { return t.id }
func (t *timestamps) Sequence() int              { return t.sequence }
func (t *timestamps) CreatedAt() time.Time       { return t.createdAt }
func (t *timestamps) UpdatedAt() time.Time       { return t.updatedAt }
func (t *timestamps) DeletedAt() *time.Time      { return t.deletedAt }
func (t *timestamps) SetID(id string)            { t.id = id }
func (t *timestamps) SetSequence(seq int)        { t.sequence = seq }
func (t *timestamps) SetCreatedAt(ts time.Time)  { t.createdAt = ts }
func (t *timestamps) SetUpdatedAt(ts time.Time)  { t.updatedAt = ts }
func (t *timestamps) SetDeletedAt(ts *time.Time) { t.deletedAt = ts }
