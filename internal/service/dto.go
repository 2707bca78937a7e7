package service

import (
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/callback"
	"github.com/cassiomorais/sokopay/internal/domain/payment"
	"github.com/google/uuid"
)

// Controllers convert their HTTP DTOs to this type.
type InitiateRequest struct {
	AmountCents    int64
	Currency       string
	Phone          string
	UserID         string
	PurposeType    payment.PurposeType
	SubscriptionID *uuid.UUID
	Description    string
}

type InitiateResponse struct {
	CorrelationID string
	PaymentID     uuid.UUID
	Message       string
}

// HandleResult describes what a callback delivery did.
type HandleResult struct {
	AuditID       uuid.UUID
	CorrelationID string
	Outcome       callback.Outcome
	// Applied is false when every write was already in place.
	Applied bool
}

// ReplaySummary counts the work done by one replay pass.
type ReplaySummary struct {
	Scanned   int
	Processed int
	Skipped   int
	Failed    int
}

// AuditQuery filters callback audit listings.
type AuditQuery struct {
	Processed     *bool
	CorrelationID *string
	Limit         int
	Offset        int
	OlderThan     time.Duration
}
