package outbox

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists change-feed entries. Insert joins the caller's
// transaction so an entry commits together with the entity change it
// describes; GetPending locks the rows it returns until that transaction ends.
type Repository interface {
	// Insert records a pending entry.
	Insert(ctx context.Context, entry *Entry) error

	// GetPending returns up to limit pending entries with retries left,
	// oldest first.
	GetPending(ctx context.Context, limit int) ([]*Entry, error)

	// MarkPublished records a successful publish.
	MarkPublished(ctx context.Context, id uuid.UUID) error

	// MarkFailed counts a failed publish attempt; the entry becomes failed once
	// its retries are used up.
	MarkFailed(ctx context.Context, id uuid.UUID) error
}
