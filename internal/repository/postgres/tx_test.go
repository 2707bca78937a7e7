package postgres

import (
	"context"
	"errors"
	"testing"

	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	commitErr   error
	rollbackErr error
	committed   bool
	rolledBack  bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return t.rollbackErr
}

type fakeBeginner struct {
	tx  *fakeTx
	err error
}

func (b *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTransaction_Commits(t *testing.T) {
	tx := &fakeTx{}
	m := &TxManager{db: &fakeBeginner{tx: tx}}

	var joined DBTX
	err := m.WithTransaction(context.Background(), func(ctx context.Context) error {
		joined = ConnFromCtx(ctx, nil)
		return nil
	})

	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	assert.Same(t, tx, joined, "repositories see the transaction through the context")
}

func TestWithTransaction_StorageFailures(t *testing.T) {
	driverErr := errors.New("connection reset")

	tests := []struct {
		name   string
		db     *fakeBeginner
		fnErr  error
		wantOp string
	}{
		{"begin", &fakeBeginner{err: driverErr}, nil, "begin tx"},
		{"commit", &fakeBeginner{tx: &fakeTx{commitErr: driverErr}}, nil, "commit tx"},
		{"rollback", &fakeBeginner{tx: &fakeTx{rollbackErr: driverErr}}, domainErrors.ErrPaymentNotFound, "rollback tx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &TxManager{db: tt.db}
			err := m.WithTransaction(context.Background(), func(ctx context.Context) error { return tt.fnErr })

			var se *domainErrors.StorageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantOp, se.Op)
			assert.ErrorIs(t, err, driverErr)
			if tt.fnErr != nil {
				assert.ErrorIs(t, err, tt.fnErr, "the cause is kept next to the rollback failure")
			}
		})
	}
}

func TestWithTransaction_RollbackKeepsCallbackError(t *testing.T) {
	tx := &fakeTx{}
	m := &TxManager{db: &fakeBeginner{tx: tx}}

	err := m.WithTransaction(context.Background(), func(ctx context.Context) error {
		return domainErrors.ErrInvalidStateTransition
	})

	assert.Same(t, domainErrors.ErrInvalidStateTransition, err)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)

	var se *domainErrors.StorageError
	assert.False(t, errors.As(err, &se))
}
