package controller

import (
	"encoding/json"
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/callback"
	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/cassiomorais/sokopay/internal/domain/payment"
	"github.com/cassiomorais/sokopay/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (decimal amounts, string ids, validation tags).
// Controllers convert them to service DTOs before calling business logic.

// InitiatePaymentRequest is the body of POST /api/v1/payments/initiate.
// Amount is in major units and accepts a JSON number or string.
type InitiatePaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Phone          string          `json:"phone" validate:"required,max=20"`
	UserID         string          `json:"userId" validate:"required,max=128"`
	PurposeType    string          `json:"purposeType" validate:"max=32"`
	SubscriptionID *string         `json:"subscriptionId,omitempty" validate:"omitempty,uuid"`
	Description    string          `json:"description,omitempty" validate:"max=140"`
}

// toService converts the HTTP request into the service request.
func (r *InitiatePaymentRequest) toService() (service.InitiateRequest, error) {
	cents, err := decimalToCents(r.Amount)
	if err != nil {
		return service.InitiateRequest{}, err
	}
	req := service.InitiateRequest{
		AmountCents: cents,
		Currency:    r.Currency,
		Phone:       r.Phone,
		UserID:      r.UserID,
		PurposeType: payment.PurposeType(r.PurposeType),
		Description: r.Description,
	}
	if r.SubscriptionID != nil {
		id, err := uuid.Parse(*r.SubscriptionID)
		if err != nil {
			return service.InitiateRequest{}, domainErrors.NewValidationError("subscriptionId", "must be a uuid")
		}
		req.SubscriptionID = &id
	}
	return req, nil
}

// --- Response DTOs ---

// InitiatePaymentResponse is returned once the push is accepted by the gateway.
type InitiatePaymentResponse struct {
	CorrelationID string `json:"correlationId"`
	PaymentID     string `json:"paymentId"`
	Message       string `json:"message"`
}

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID                    string         `json:"id"`
	UserID                *string        `json:"userId,omitempty"`
	Amount                string         `json:"amount"`
	Currency              string         `json:"currency"`
	CorrelationID         string         `json:"correlationId"`
	ExternalTransactionID *string        `json:"mpesaTransactionId,omitempty"`
	Status                string         `json:"status"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
	CompletedAt           *time.Time     `json:"completedAt,omitempty"`
}

// AuditResponse represents a stored callback delivery.
type AuditResponse struct {
	ID              string            `json:"id"`
	CorrelationID   *string           `json:"correlationId,omitempty"`
	Processed       bool              `json:"processed"`
	ProcessedAt     *time.Time        `json:"processedAt,omitempty"`
	Outcome         *string           `json:"outcome,omitempty"`
	ProcessingError *string           `json:"processingError,omitempty"`
	ReplayCount     int               `json:"replayCount"`
	Headers         map[string]string `json:"headers,omitempty"`
	RawBody         json.RawMessage   `json:"rawBody,omitempty"`
	RawText         string            `json:"rawText,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// ReplayResponse reports the outcome of a manual replay.
type ReplayResponse struct {
	AuditID       string `json:"auditId"`
	CorrelationID string `json:"correlationId,omitempty"`
	Outcome       string `json:"outcome"`
	Applied       bool   `json:"applied"`
}

// CallbackAck is the body the gateway expects back from a callback delivery.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromPayment converts a domain payment to API response.
func FromPayment(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                    p.ID.String(),
		UserID:                p.UserID,
		Amount:                centsToDecimal(p.Amount.ValueCents).StringFixed(2),
		Currency:              p.Amount.Currency,
		CorrelationID:         p.CorrelationID,
		ExternalTransactionID: p.ExternalTransactionID,
		Status:                string(p.Status),
		Metadata:              p.Metadata,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
		CompletedAt:           p.CompletedAt,
	}
}

// FromAudit converts a callback audit record to API response. Bodies that
// are not JSON are returned as text.
func FromAudit(a *callback.Audit) *AuditResponse {
	resp := &AuditResponse{
		ID:              a.ID.String(),
		CorrelationID:   a.CorrelationID,
		Processed:       a.Processed,
		ProcessedAt:     a.ProcessedAt,
		ProcessingError: a.ProcessingError,
		ReplayCount:     a.ReplayCount,
		Headers:         a.Headers,
		CreatedAt:       a.CreatedAt,
	}
	if a.Outcome != nil {
		outcome := string(*a.Outcome)
		resp.Outcome = &outcome
	}
	if a.IsJSON() {
		resp.RawBody = json.RawMessage(a.RawBody)
	} else {
		resp.RawText = string(a.RawBody)
	}
	return resp
}

// FromHandleResult converts a replay result to API response.
func FromHandleResult(r *service.HandleResult) *ReplayResponse {
	return &ReplayResponse{
		AuditID:       r.AuditID.String(),
		CorrelationID: r.CorrelationID,
		Outcome:       string(r.Outcome),
		Applied:       r.Applied,
	}
}

var maxAmount = decimal.New(1, 12)

// decimalToCents converts a major-unit amount to minor units. Amounts with
// more than two decimal places are rejected rather than rounded.
func decimalToCents(d decimal.Decimal) (int64, error) {
	if !d.IsPositive() {
		return 0, domainErrors.NewValidationError("amount", "amount must be positive")
	}
	if d.GreaterThanOrEqual(maxAmount) {
		return 0, domainErrors.NewValidationError("amount", "amount too large")
	}
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, domainErrors.NewValidationError("amount", "at most two decimal places")
	}
	return cents.IntPart(), nil
}

// centsToDecimal converts minor units to a major-unit amount.
func centsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
