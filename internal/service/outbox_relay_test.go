package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cassiomorais/sokopay/internal/domain/outbox"
	"github.com/cassiomorais/sokopay/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRelay() (*OutboxRelay, *testutil.MockOutboxRepository, *testutil.MockPublisher) {
	repo := &testutil.MockOutboxRepository{}
	pub := &testutil.MockPublisher{}
	relay := NewOutboxRelay(repo, testutil.NewMockTransactionManager(), pub, pub, 10, "payments:changes", nil, zerolog.Nop())
	return relay, repo, pub
}

func TestOutboxRelay_PublishesPending(t *testing.T) {
	relay, repo, pub := setupRelay()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(ctx, outbox.NewEntry(outbox.AggregatePayment, uuid.New(), outbox.EventPaymentInitiated, nil)))
	}

	n, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, pub.Published(), 3)
	for _, e := range repo.Entries() {
		assert.Equal(t, outbox.StatusPublished, e.Status)
		assert.NotNil(t, e.PublishedAt)
	}

	// Nothing left on the second pass.
	n, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxRelay_FailureCountsRetry(t *testing.T) {
	relay, repo, pub := setupRelay()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, outbox.NewEntry(outbox.AggregatePayment, uuid.New(), outbox.EventPaymentFailed, nil)))
	pub.PublishFunc = func(ctx context.Context, entry *outbox.Entry) error {
		return errors.New("broker down")
	}

	n, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	entries := repo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Equal(t, outbox.StatusPending, entries[0].Status)
	assert.Empty(t, pub.DeadLettered())
}

func TestOutboxRelay_ExhaustedEntryDeadLettered(t *testing.T) {
	relay, repo, pub := setupRelay()
	ctx := context.Background()
	entry := outbox.NewEntry(outbox.AggregateEscrow, uuid.New(), outbox.EventEscrowFundsHeld, nil)
	entry.RetryCount = entry.MaxRetries - 1
	require.NoError(t, repo.Insert(ctx, entry))
	pub.PublishFunc = func(ctx context.Context, entry *outbox.Entry) error {
		return errors.New("broker down")
	}

	_, err := relay.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, outbox.StatusFailed, repo.Entries()[0].Status)
	require.Len(t, pub.DeadLettered(), 1)
	assert.Equal(t, entry.ID, pub.DeadLettered()[0].ID)
}

func TestOutboxRelay_StorageErrorAborts(t *testing.T) {
	relay, repo, _ := setupRelay()
	repo.GetPendingFunc = func(ctx context.Context, limit int) ([]*outbox.Entry, error) {
		return nil, errors.New("connection refused")
	}

	_, err := relay.RunOnce(context.Background())
	assert.Error(t, err)
}
