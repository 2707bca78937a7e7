package callback

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for callback audit persistence
type Repository interface {
	// Insert stores a new, unprocessed audit record
	Insert(ctx context.Context, a *Audit) error

	// GetByID returns errors.ErrCallbackNotFound when no row matches.
	GetByID(ctx context.Context, id uuid.UUID) (*Audit, error)

	// MarkProcessed finalizes the record identified by id.
	MarkProcessed(ctx context.Context, id uuid.UUID, outcome Outcome, at time.Time) error

	// RecordError stores the last processing error on an unprocessed record.
	RecordError(ctx context.Context, id uuid.UUID, message string) error

	// IncrementReplay bumps the replay counter
	IncrementReplay(ctx context.Context, id uuid.UUID) error

	// List lists audit records with filters
	List(ctx context.Context, filter ListFilter) ([]*Audit, error)
}

// ListFilter defines filters for listing audit records
type ListFilter struct {
	Processed      *bool
	CorrelationID  *string
	CreatedBefore  *time.Time
	HasCorrelation bool
	Limit          int
	Offset         int
}
