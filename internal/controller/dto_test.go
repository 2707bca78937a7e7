package controller

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/callback"
	"github.com/cassiomorais/sokopay/internal/domain/payment"
	"github.com/cassiomorais/sokopay/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalToCents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"whole", "50", 5000, false},
		{"two places", "123.45", 12345, false},
		{"one place", "10.5", 1050, false},
		{"min valid", "0.01", 1, false},
		{"trailing zeros", "10.500", 1050, false},
		{"zero", "0", 0, true},
		{"negative", "-10.00", 0, true},
		{"sub cent", "10.999", 0, true},
		{"too large", "1000000000000", 0, true},
		{"just under max", "999999999999.99", 99999999999999, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decimalToCents(decimal.RequireFromString(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCentsToDecimal(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{12345, "123.45"},
		{100, "1.00"},
		{1, "0.01"},
		{0, "0.00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, centsToDecimal(tt.cents).StringFixed(2))
	}
}

func TestInitiatePaymentRequest_AcceptsNumberOrString(t *testing.T) {
	for _, body := range []string{`{"amount":50.25}`, `{"amount":"50.25"}`} {
		var req InitiatePaymentRequest
		require.NoError(t, json.Unmarshal([]byte(body), &req))
		cents, err := decimalToCents(req.Amount)
		require.NoError(t, err)
		assert.Equal(t, int64(5025), cents)
	}
}

func TestFromPayment(t *testing.T) {
	p := testutil.NewTestPayment(payment.PurposeEscrow, 150050)
	_, err := p.MarkSucceeded("RCPT1")
	require.NoError(t, err)

	resp := FromPayment(p)
	assert.Equal(t, p.ID.String(), resp.ID)
	assert.Equal(t, "1500.50", resp.Amount)
	assert.Equal(t, "KES", resp.Currency)
	assert.Equal(t, "success", resp.Status)
	require.NotNil(t, resp.ExternalTransactionID)
	assert.Equal(t, "RCPT1", *resp.ExternalTransactionID)
	assert.NotNil(t, resp.CompletedAt)
}

func TestFromAudit(t *testing.T) {
	jsonAudit := callback.NewAudit(testutil.STKSuccessBody("CHK1abcdefg", "RCPT1"), map[string]string{"content-type": "application/json"})
	jsonAudit.MarkProcessed(callback.OutcomeSuccess, time.Now())

	resp := FromAudit(jsonAudit)
	assert.True(t, resp.Processed)
	require.NotNil(t, resp.Outcome)
	assert.Equal(t, "success", *resp.Outcome)
	assert.JSONEq(t, string(jsonAudit.RawBody), string(resp.RawBody))
	assert.Empty(t, resp.RawText)

	textAudit := callback.NewAudit([]byte("plain text"), nil)
	resp = FromAudit(textAudit)
	assert.Nil(t, resp.RawBody)
	assert.Equal(t, "plain text", resp.RawText)
	assert.Nil(t, resp.Outcome)
}
