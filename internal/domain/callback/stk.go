package callback

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ReceiptItemName is the metadata item carrying the provider transaction id.
const ReceiptItemName = "MpesaReceiptNumber"

// ResultCodeSuccess is the only result code that can mean a completed charge.
const ResultCodeSuccess = 0

// resultCodeUnknown marks a missing or non-numeric result code.
const resultCodeUnknown = -1

// Result is the interpreted form of a gateway callback. It is one of
// Success, Failure or Malformed.
type Result interface {
	// Correlation returns the correlation id, or "" when none was found.
	Correlation() string
	isResult()
}

// Success is a confirmed charge: result code 0 with a provider receipt.
type Success struct {
	CorrelationID string
	TransactionID string
	ResultDesc    string
}

// Failure is any other delivery that still names a correlation id.
type Failure struct {
	CorrelationID string
	ResultCode    int
	ResultDesc    string
}

// Malformed is a delivery with no usable correlation id.
type Malformed struct {
	Reason string
}

func (s Success) Correlation() string   { return s.CorrelationID }
func (f Failure) Correlation() string   { return f.CorrelationID }
func (m Malformed) Correlation() string { return "" }

func (Success) isResult()   {}
func (Failure) isResult()   {}
func (Malformed) isResult() {}

type stkEnvelope struct {
	Body *struct {
		STKCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string          `json:"MerchantRequestID"`
	CheckoutRequestID string          `json:"CheckoutRequestID"`
	ResultCode        json.RawMessage `json:"ResultCode"`
	ResultDesc        string          `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []stkItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type stkItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ParseSTK interprets an STK push callback body. It never fails: anything
// it cannot make sense of is returned as Malformed.
func ParseSTK(body []byte) Result {
	if len(bytes.TrimSpace(body)) == 0 {
		return Malformed{Reason: "empty body"}
	}

	var env stkEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Malformed{Reason: "invalid json: " + err.Error()}
	}
	if env.Body == nil || env.Body.STKCallback == nil {
		return Malformed{Reason: "missing Body.stkCallback"}
	}

	cb := env.Body.STKCallback
	correlationID := strings.TrimSpace(cb.CheckoutRequestID)
	if correlationID == "" {
		return Malformed{Reason: "missing CheckoutRequestID"}
	}
	if strings.ContainsRune(correlationID, 0) {
		return Malformed{Reason: "CheckoutRequestID contains NUL"}
	}

	code := parseResultCode(cb.ResultCode)
	receipt := cb.receipt()
	if strings.ContainsRune(receipt, 0) {
		return Malformed{Reason: "MpesaReceiptNumber contains NUL"}
	}
	if code == ResultCodeSuccess && receipt != "" {
		return Success{
			CorrelationID: correlationID,
			TransactionID: receipt,
			ResultDesc:    cb.ResultDesc,
		}
	}

	return Failure{
		CorrelationID: correlationID,
		ResultCode:    code,
		ResultDesc:    cb.ResultDesc,
	}
}

// parseResultCode accepts JSON numbers only.
func parseResultCode(raw json.RawMessage) int {
	if len(raw) == 0 {
		return resultCodeUnknown
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return resultCodeUnknown
	}
	if raw[0] == '"' {
		return resultCodeUnknown
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return resultCodeUnknown
	}
	return v
}

func (cb *stkCallback) receipt() string {
	if cb.CallbackMetadata == nil {
		return ""
	}
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name != ReceiptItemName {
			continue
		}
		return rawScalar(item.Value)
	}
	return ""
}

// rawScalar renders a JSON string or number as text.
func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
