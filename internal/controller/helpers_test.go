package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		payload      any
		expectedBody string
	}{
		{
			name:         "simple map",
			status:       http.StatusOK,
			payload:      map[string]string{"message": "hello"},
			expectedBody: `{"message":"hello"}`,
		},
		{
			name:         "callback ack",
			status:       http.StatusOK,
			payload:      CallbackAck{ResultCode: 0, ResultDesc: "Accepted"},
			expectedBody: `{"ResultCode":0,"ResultDesc":"Accepted"}`,
		},
		{
			name:         "error response",
			status:       http.StatusBadRequest,
			payload:      ErrorResponse{Error: "bad request", Code: "invalid_input"},
			expectedBody: `{"error":"bad request","code":"invalid_input"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeJSON(w, tt.status, tt.payload)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestWriteError_ValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewValidationError("phone", "is required"))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "validation_error", response.Code)
	assert.Contains(t, response.Error, "phone")
}

func TestWriteError_DomainErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"payment not found", domainErrors.ErrPaymentNotFound, http.StatusNotFound, "not_found"},
		{"wrapped payment not found", fmt.Errorf("load payment x: %w", domainErrors.ErrPaymentNotFound), http.StatusNotFound, "not_found"},
		{"subscription not found", domainErrors.ErrSubscriptionNotFound, http.StatusNotFound, "not_found"},
		{"callback not found", domainErrors.ErrCallbackNotFound, http.StatusNotFound, "not_found"},
		{"invalid state transition", domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
		{"lock held", domainErrors.ErrLockAcquisitionFailed, http.StatusConflict, "replay_in_progress"},
		{"duplicate idempotency key", domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request"},
		{"gateway unavailable", domainErrors.ErrGatewayUnavailable, http.StatusServiceUnavailable, "gateway_unavailable"},
		{"gateway timeout", domainErrors.ErrGatewayTimeout, http.StatusGatewayTimeout, "gateway_timeout"},
		{"unauthorized", domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", domainErrors.ErrForbidden, http.StatusForbidden, "forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedCode, response.Code)
		})
	}
}

func TestWriteError_UpstreamGatewayError(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeError(w, fmt.Errorf("saga: %w", domainErrors.NewUpstreamGatewayError("mpesa", 401, []byte(`{"errorMessage":"Invalid Access Token"}`))))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"errorMessage":"Invalid Access Token"}`, w.Body.String())
	})

	t.Run("text body", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeError(w, domainErrors.NewUpstreamGatewayError("mpesa", 503, []byte("Service Unavailable")))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
		assert.Equal(t, "Service Unavailable", w.Body.String())
	})

	t.Run("non error status", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeError(w, domainErrors.NewUpstreamGatewayError("mpesa", 0, nil))
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestWriteError_StorageErrorIsGeneric(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewStorageError("insert payment", errors.New(`duplicate key value violates unique constraint "payments_pkey"`)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "payments_pkey")

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "internal_error", response.Code)
}

func TestWriteError_GenericDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domainErrors.NewDomainError("custom_error", "custom error message", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "custom_error", response.Code)
	assert.Equal(t, "custom error message", response.Error)
}

func TestWriteError_UnknownError_FallbackToInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, errors.New("unexpected error"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "internal_error", response.Code)
	assert.Equal(t, "internal server error", response.Error)
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"amount":"12.50","phone":"254712345678","userId":"u1","purposeType":"escrow"}`
	req := httptest.NewRequest("POST", "/test", strings.NewReader(body))

	var result InitiatePaymentRequest
	require.NoError(t, decodeAndValidate(req, &result))
	assert.Equal(t, "12.5", result.Amount.String())
	assert.Equal(t, "u1", result.UserID)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/test", strings.NewReader(`{invalid json}`))

	var result InitiatePaymentRequest
	err := decodeAndValidate(req, &result)

	var validationErr *domainErrors.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "body", validationErr.Field)
	assert.Contains(t, validationErr.Message, "invalid JSON")
}

func TestDecodeAndValidate_UsesJSONFieldNames(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing phone", `{"amount":1,"userId":"u1"}`, "phone"},
		{"missing user", `{"amount":1,"phone":"254712345678"}`, "userId"},
		{"bad currency", `{"amount":1,"phone":"254712345678","userId":"u1","currency":"KESH"}`, "currency"},
		{"bad subscription", `{"amount":1,"phone":"254712345678","userId":"u1","subscriptionId":"abc"}`, "subscriptionId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", strings.NewReader(tt.body))

			var result InitiatePaymentRequest
			err := decodeAndValidate(req, &result)

			var validationErr *domainErrors.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tt.field, validationErr.Field)
			assert.Contains(t, validationErr.Message, "validation failed")
		})
	}
}

func TestDecodeAndValidate_EmptyBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/test", bytes.NewReader([]byte{}))

	var result InitiatePaymentRequest
	assert.Error(t, decodeAndValidate(req, &result))
}
