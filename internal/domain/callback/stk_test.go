package callback_test

import (
	"testing"
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/callback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successBody = `{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":"CHK1700000000000abc1234","ResultCode":0,"ResultDesc":"The service request is processed successfully.","CallbackMetadata":{"Item":[{"Name":"Amount","Value":50},{"Name":"MpesaReceiptNumber","Value":"RCPT123"},{"Name":"PhoneNumber","Value":254700000000}]}}}}`

func TestParseSTK_Success(t *testing.T) {
	res := callback.ParseSTK([]byte(successBody))

	s, ok := res.(callback.Success)
	require.True(t, ok, "expected Success, got %T", res)
	assert.Equal(t, "CHK1700000000000abc1234", s.CorrelationID)
	assert.Equal(t, "RCPT123", s.TransactionID)
	assert.Equal(t, s.CorrelationID, res.Correlation())
}

func TestParseSTK_Failure(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{
			name: "cancelled by user",
			body: `{"Body":{"stkCallback":{"CheckoutRequestID":"CHK1","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`,
			code: 1032,
		},
		{
			name: "zero code without receipt",
			body: `{"Body":{"stkCallback":{"CheckoutRequestID":"CHK1","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"Amount","Value":1}]}}}}`,
			code: 0,
		},
		{
			name: "string result code",
			body: `{"Body":{"stkCallback":{"CheckoutRequestID":"CHK1","ResultCode":"0","CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"R1"}]}}}}`,
			code: -1,
		},
		{
			name: "missing result code",
			body: `{"Body":{"stkCallback":{"CheckoutRequestID":"CHK1"}}}`,
			code: -1,
		},
		{
			name: "empty receipt",
			body: `{"Body":{"stkCallback":{"CheckoutRequestID":"CHK1","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":""}]}}}}`,
			code: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callback.ParseSTK([]byte(tt.body))
			f, ok := res.(callback.Failure)
			require.True(t, ok, "expected Failure, got %T", res)
			assert.Equal(t, "CHK1", f.CorrelationID)
			assert.Equal(t, tt.code, f.ResultCode)
		})
	}
}

func TestParseSTK_NumericReceipt(t *testing.T) {
	body := `{"Body":{"stkCallback":{"CheckoutRequestID":"CHK1","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":123456}]}}}}`
	s, ok := callback.ParseSTK([]byte(body)).(callback.Success)
	require.True(t, ok)
	assert.Equal(t, "123456", s.TransactionID)
}

func TestParseSTK_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"not json", "<xml/>"},
		{"no body", `{"foo":1}`},
		{"no stkCallback", `{"Body":{}}`},
		{"no checkout id", `{"Body":{"stkCallback":{"ResultCode":0}}}`},
		{"blank checkout id", `{"Body":{"stkCallback":{"CheckoutRequestID":"  ","ResultCode":0}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callback.ParseSTK([]byte(tt.body))
			m, ok := res.(callback.Malformed)
			require.True(t, ok, "expected Malformed, got %T", res)
			assert.NotEmpty(t, m.Reason)
			assert.Empty(t, res.Correlation())
		})
	}
}

func TestNewAudit(t *testing.T) {
	body := []byte(successBody)
	a := callback.NewAudit(body, map[string]string{"content-type": "application/json"})

	require.NotNil(t, a.CorrelationID)
	assert.Equal(t, "CHK1700000000000abc1234", *a.CorrelationID)
	assert.False(t, a.Processed)
	assert.True(t, a.IsJSON())
	assert.Equal(t, body, a.RawBody)

	body[0] = 'x'
	assert.Equal(t, byte('{'), a.RawBody[0], "audit must keep its own copy of the body")
}

func TestNewAudit_Unparseable(t *testing.T) {
	a := callback.NewAudit([]byte("garbage"), nil)
	assert.Nil(t, a.CorrelationID)
	assert.False(t, a.IsJSON())
	assert.NotNil(t, a.Headers)
}

func TestAudit_JSONPayload(t *testing.T) {
	euro := []byte(`{"Body":"price €5"}`)
	tests := []struct {
		name    string
		body    []byte
		payload bool
	}{
		{"plain json", []byte(successBody), true},
		{"multi-byte text", euro, true},
		{"nul escape", []byte(`{"Body":"\u0000"}`), false},
		{"lone surrogate escape", []byte(`{"Body":"\uD800"}`), false},
		{"raw nul byte", []byte("{\"Body\":\"a\x00b\"}"), false},
		{"invalid utf-8", []byte("{\"Body\":\"\xff\xfe\"}"), false},
		{"rune cut in half", euro[:len(euro)-5], false},
		{"not json", []byte("garbage"), false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := callback.NewAudit(tt.body, nil)
			if tt.payload {
				assert.Equal(t, tt.body, a.JSONPayload())
			} else {
				assert.Nil(t, a.JSONPayload())
			}
			assert.Equal(t, len(tt.body), len(a.RawBody), "raw body is kept verbatim")
		})
	}
}

func TestParseSTK_NULInIdentifiersIsMalformed(t *testing.T) {
	bodies := map[string]string{
		"correlation": `{"Body":{"stkCallback":{"CheckoutRequestID":"CHK1\u0000x","ResultCode":1032,"ResultDesc":"cancelled"}}}`,
		"receipt":     `{"Body":{"stkCallback":{"CheckoutRequestID":"CHK1","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"R\u00001"}]}}}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, ok := callback.ParseSTK([]byte(body)).(callback.Malformed)
			assert.True(t, ok)
			assert.Nil(t, callback.NewAudit([]byte(body), nil).CorrelationID)
		})
	}
}

func TestAudit_MarkProcessed(t *testing.T) {
	a := callback.NewAudit([]byte(successBody), nil)
	msg := "boom"
	a.ProcessingError = &msg

	at := time.Now()
	a.MarkProcessed(callback.OutcomeSuccess, at)

	assert.True(t, a.Processed)
	assert.Equal(t, at, *a.ProcessedAt)
	assert.Equal(t, callback.OutcomeSuccess, *a.Outcome)
	assert.Nil(t, a.ProcessingError)
}
