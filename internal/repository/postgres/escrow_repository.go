package postgres

import (
	"context"
	"errors"

	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/cassiomorais/sokopay/internal/domain/escrow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EscrowRepository implements escrow.Repository using PostgreSQL.
type EscrowRepository struct {
	pool *pgxpool.Pool
}

// NewEscrowRepository creates a new EscrowRepository.
func NewEscrowRepository(pool *pgxpool.Pool) *EscrowRepository {
	return &EscrowRepository{pool: pool}
}

func (r *EscrowRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts a new escrow transaction.
func (r *EscrowRepository) Create(ctx context.Context, t *escrow.Transaction) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO escrow_transactions (id, payment_ref, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.PaymentRef, string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return domainErrors.NewStorageError("insert escrow transaction", err)
	}
	return nil
}

// GetByPaymentRef returns the escrow transaction funded by the given payment.
func (r *EscrowRepository) GetByPaymentRef(ctx context.Context, paymentID uuid.UUID) (*escrow.Transaction, error) {
	t := &escrow.Transaction{}
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, payment_ref, status, created_at, updated_at
		 FROM escrow_transactions WHERE payment_ref = $1
		 ORDER BY created_at ASC
		 LIMIT 1`, paymentID,
	).Scan(&t.ID, &t.PaymentRef, &status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEscrowNotFound
		}
		return nil, domainErrors.NewStorageError("get escrow by payment", err)
	}
	t.Status = escrow.Status(status)
	return t, nil
}

// UpdateStatus writes the escrow status.
func (r *EscrowRepository) UpdateStatus(ctx context.Context, t *escrow.Transaction) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE escrow_transactions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(t.Status), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return domainErrors.NewStorageError("update escrow status", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrEscrowNotFound
	}
	return nil
}
