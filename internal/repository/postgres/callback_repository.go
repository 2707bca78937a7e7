package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/callback"
	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const callbackColumns = `id, raw_body, headers, correlation_id, processed, processed_at,
		        outcome, processing_error, replay_count, created_at`

// CallbackRepository implements callback.Repository using PostgreSQL.
type CallbackRepository struct {
	pool *pgxpool.Pool
}

// NewCallbackRepository creates a new CallbackRepository.
func NewCallbackRepository(pool *pgxpool.Pool) *CallbackRepository {
	return &CallbackRepository{pool: pool}
}

func (r *CallbackRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Insert stores the delivery as received. raw_body is bytea so that any byte
// sequence is accepted; payload is only populated when jsonb will take it.
func (r *CallbackRepository) Insert(ctx context.Context, a *callback.Audit) error {
	args, err := auditInsertArgs(a)
	if err != nil {
		return err
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO mpesa_callbacks
		 (id, raw_body, payload, headers, correlation_id, processed, replay_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, false, 0, $6)`,
		args...,
	)
	if err != nil {
		return domainErrors.NewStorageError("insert callback audit", err)
	}
	return nil
}

// auditInsertArgs renders the audit row parameters. Header values lose NUL
// bytes, which jsonb cannot hold.
func auditInsertArgs(a *callback.Audit) ([]any, error) {
	headers := make(map[string]string, len(a.Headers))
	for k, v := range a.Headers {
		headers[strings.ReplaceAll(k, "\x00", "")] = strings.ReplaceAll(v, "\x00", "")
	}
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("marshal callback headers: %w", err)
	}

	raw := a.RawBody
	if raw == nil {
		raw = []byte{}
	}
	return []any{a.ID, raw, a.JSONPayload(), headerJSON, a.CorrelationID, a.CreatedAt}, nil
}

// GetByID retrieves an audit record by its ID.
func (r *CallbackRepository) GetByID(ctx context.Context, id uuid.UUID) (*callback.Audit, error) {
	return r.scanAudit(r.db(ctx).QueryRow(ctx,
		`SELECT `+callbackColumns+` FROM mpesa_callbacks WHERE id = $1`, id))
}

// MarkProcessed finalizes the audit record by its own id.
func (r *CallbackRepository) MarkProcessed(ctx context.Context, id uuid.UUID, outcome callback.Outcome, at time.Time) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE mpesa_callbacks
		 SET processed = true, processed_at = $1, outcome = $2, processing_error = NULL
		 WHERE id = $3`,
		at, string(outcome), id,
	)
	if err != nil {
		return domainErrors.NewStorageError("mark callback processed", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrCallbackNotFound
	}
	return nil
}

// RecordError stores the last processing error. Finalized rows are left alone.
func (r *CallbackRepository) RecordError(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE mpesa_callbacks SET processing_error = $1 WHERE id = $2 AND processed = false`,
		message, id,
	)
	if err != nil {
		return domainErrors.NewStorageError("record callback error", err)
	}
	return nil
}

// IncrementReplay bumps the replay counter.
func (r *CallbackRepository) IncrementReplay(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE mpesa_callbacks SET replay_count = replay_count + 1 WHERE id = $1`, id,
	)
	if err != nil {
		return domainErrors.NewStorageError("increment callback replay", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrCallbackNotFound
	}
	return nil
}

// List lists audit records, oldest first.
func (r *CallbackRepository) List(ctx context.Context, f callback.ListFilter) ([]*callback.Audit, error) {
	query := `SELECT ` + callbackColumns + ` FROM mpesa_callbacks WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.Processed != nil {
		query += fmt.Sprintf(" AND processed = $%d", argIdx)
		args = append(args, *f.Processed)
		argIdx++
	}
	if f.CorrelationID != nil {
		query += fmt.Sprintf(" AND correlation_id = $%d", argIdx)
		args = append(args, *f.CorrelationID)
		argIdx++
	}
	if f.CreatedBefore != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)
		args = append(args, *f.CreatedBefore)
		argIdx++
	}
	if f.HasCorrelation {
		query += " AND correlation_id IS NOT NULL"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY created_at ASC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, domainErrors.NewStorageError("list callback audits", err)
	}
	defer rows.Close()

	var audits []*callback.Audit
	for rows.Next() {
		a, err := r.scanAudit(rows)
		if err != nil {
			return nil, err
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domainErrors.NewStorageError("list callback audits", err)
	}
	return audits, nil
}

func (r *CallbackRepository) scanAudit(s scanner) (*callback.Audit, error) {
	a := &callback.Audit{}
	var (
		rawBody []byte
		headers []byte
		outcome *string
	)
	err := s.Scan(
		&a.ID, &rawBody, &headers, &a.CorrelationID, &a.Processed, &a.ProcessedAt,
		&outcome, &a.ProcessingError, &a.ReplayCount, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrCallbackNotFound
		}
		return nil, domainErrors.NewStorageError("scan callback audit", err)
	}

	a.RawBody = rawBody
	if outcome != nil {
		o := callback.Outcome(*outcome)
		a.Outcome = &o
	}
	a.Headers = make(map[string]string)
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &a.Headers); err != nil {
			return nil, fmt.Errorf("unmarshal callback headers: %w", err)
		}
	}
	return a, nil
}
