package postgres

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ctxKey int

const txKey ctxKey = iota

// DBTX is the common query interface satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// beginner is the part of *pgxpool.Pool the transaction manager needs.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TxManager runs units of work in one transaction carried on the context,
// so repositories called with that context join it.
type TxManager struct {
	db beginner
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{db: pool}
}

// WithTransaction commits when fn returns nil and rolls back otherwise.
// Begin, commit and rollback failures are reported as *errors.StorageError;
// errors returned by fn pass through unchanged unless the rollback also
// fails, in which case both are kept.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return domainErrors.NewStorageError("begin tx", err)
	}

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return domainErrors.NewStorageError("rollback tx",
				fmt.Errorf("%w (rollback: %w)", err, rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return domainErrors.NewStorageError("commit tx", err)
	}
	return nil
}

// ConnFromCtx returns the transaction from context if present, otherwise the pool.
func ConnFromCtx(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return tx
	}
	return pool
}
