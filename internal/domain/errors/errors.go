package errors

import (
	"errors"
	"fmt"
)

var (
	// Payment errors
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateCorrelationID = errors.New("duplicate correlation id")
	ErrUnknownPurpose         = errors.New("unknown payment purpose")

	// Downstream entity errors
	ErrEscrowNotFound       = errors.New("escrow transaction not found")
	ErrSubscriptionNotFound = errors.New("seller subscription not found")

	// Callback audit errors
	ErrCallbackNotFound = errors.New("callback audit record not found")

	// Gateway errors
	ErrGatewayNotFound    = errors.New("payment gateway not found")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment rejected by gateway")
	ErrGatewayTimeout     = errors.New("gateway request timeout")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// UpstreamGatewayError carries a non-2xx answer from the mobile-money gateway.
// The status and body are propagated to the caller unchanged.
type UpstreamGatewayError struct {
	Provider   string
	StatusCode int
	Body       []byte
}

func (e *UpstreamGatewayError) Error() string {
	return fmt.Sprintf("gateway %s responded with status %d", e.Provider, e.StatusCode)
}

func (e *UpstreamGatewayError) Unwrap() error {
	return ErrGatewayRejected
}

// NewUpstreamGatewayError creates a new upstream gateway error
func NewUpstreamGatewayError(provider string, status int, body []byte) *UpstreamGatewayError {
	return &UpstreamGatewayError{
		Provider:   provider,
		StatusCode: status,
		Body:       body,
	}
}

// StorageError wraps a durable-store failure. Op names the failed operation
// and is only ever logged, never returned to API clients.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}
