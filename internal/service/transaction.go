package service

import (
	"context"
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/outbox"
)

// TransactionManager defines the interface for transaction management.
// Services use this to wrap multiple repository operations in a single transaction.
type TransactionManager interface {
	// WithTransaction executes the given function within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Otherwise, it is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker grants short-lived exclusive locks shared between instances.
// TryLock does not wait; a lock held elsewhere returns
// errors.ErrLockAcquisitionFailed.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Publisher delivers outbox entries to the change feed.
type Publisher interface {
	Publish(ctx context.Context, entry *outbox.Entry) error
	Close() error
}
