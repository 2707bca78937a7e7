package callback

import (
	"encoding/json"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// jsonbRejected matches escapes that are valid JSON but that a jsonb column
// refuses: NUL and UTF-16 surrogate halves.
var jsonbRejected = regexp.MustCompile(`(?i)\\u(0000|d[89a-f][0-9a-f]{2})`)

// Outcome records how a stored callback was finally handled.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeRejected  Outcome = "rejected"
	OutcomeMalformed Outcome = "malformed"
)

// Audit is the write-once-then-finalized record of one inbound gateway
// delivery. It is created before the body is interpreted.
type Audit struct {
	ID              uuid.UUID
	RawBody         []byte
	Headers         map[string]string
	CorrelationID   *string
	Processed       bool
	ProcessedAt     *time.Time
	Outcome         *Outcome
	ProcessingError *string
	ReplayCount     int
	CreatedAt       time.Time
}

// NewAudit captures a delivery exactly as received.
func NewAudit(body []byte, headers map[string]string) *Audit {
	raw := make([]byte, len(body))
	copy(raw, body)
	if headers == nil {
		headers = map[string]string{}
	}
	a := &Audit{
		ID:        uuid.New(),
		RawBody:   raw,
		Headers:   headers,
		CreatedAt: time.Now(),
	}
	if id := ParseSTK(raw).Correlation(); id != "" {
		a.CorrelationID = &id
	}
	return a
}

// IsJSON reports whether the raw body is a UTF-8 JSON document.
func (a *Audit) IsJSON() bool {
	return len(a.RawBody) > 0 && utf8.Valid(a.RawBody) && json.Valid(a.RawBody)
}

// JSONPayload returns the body when it can also be kept as a queryable JSON
// document, nil otherwise. RawBody stays the authoritative copy either way.
func (a *Audit) JSONPayload() []byte {
	if !a.IsJSON() || jsonbRejected.Match(a.RawBody) {
		return nil
	}
	return a.RawBody
}

// MarkProcessed finalizes the audit record.
func (a *Audit) MarkProcessed(outcome Outcome, at time.Time) {
	a.Processed = true
	a.ProcessedAt = &at
	a.Outcome = &outcome
	a.ProcessingError = nil
}
