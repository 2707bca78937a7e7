package postgres

import (
	"context"
	"errors"

	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/cassiomorais/sokopay/internal/domain/subscription"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository implements subscription.Repository using PostgreSQL.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

func (r *SubscriptionRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// GetByID retrieves a seller subscription by its ID.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*subscription.SellerSubscription, error) {
	s := &subscription.SellerSubscription{}
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, seller_id, plan_code, active, mpesa_tx_id, activated_at, created_at, updated_at
		 FROM seller_subscriptions WHERE id = $1`, id,
	).Scan(&s.ID, &s.SellerID, &s.PlanCode, &s.Active, &s.MpesaTxID, &s.ActivatedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrSubscriptionNotFound
		}
		return nil, domainErrors.NewStorageError("get seller subscription", err)
	}
	return s, nil
}

// UpdateActivation writes the activation fields.
func (r *SubscriptionRepository) UpdateActivation(ctx context.Context, s *subscription.SellerSubscription) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE seller_subscriptions
		 SET active = $1, mpesa_tx_id = $2, activated_at = $3, updated_at = $4
		 WHERE id = $5`,
		s.Active, s.MpesaTxID, s.ActivatedAt, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return domainErrors.NewStorageError("update seller subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrSubscriptionNotFound
	}
	return nil
}
