package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Aggregate types that emit change events.
const (
	AggregatePayment      = "payment"
	AggregateEscrow       = "escrow_transaction"
	AggregateSubscription = "seller_subscription"
)

// Event types published on the change feed.
const (
	EventPaymentInitiated      = "payment.initiated"
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
	EventPaymentCancelled      = "payment.cancelled"
	EventEscrowFundsHeld       = "escrow.funds_held"
	EventSubscriptionActivated = "subscription.activated"
	defaultMaxPublishAttempts  = 5
)

// Entry is a change event recorded in the same transaction as the state
// change it describes.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		MaxRetries:    defaultMaxPublishAttempts,
		CreatedAt:     time.Now(),
	}
}

// Exhausted reports whether the entry has used all of its publish attempts.
func (e *Entry) Exhausted() bool {
	return e.RetryCount >= e.MaxRetries
}

// Message is the wire form of an entry on the change feed.
type Message struct {
	ID            uuid.UUID      `json:"id"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   uuid.UUID      `json:"aggregate_id"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Message returns the change-feed representation of the entry.
func (e *Entry) Message() Message {
	return Message{
		ID:            e.ID,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		EventType:     e.EventType,
		Payload:       e.Payload,
		OccurredAt:    e.CreatedAt,
	}
}
