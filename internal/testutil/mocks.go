package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cassiomorais/sokopay/internal/domain/callback"
	domainErrors "github.com/cassiomorais/sokopay/internal/domain/errors"
	"github.com/cassiomorais/sokopay/internal/domain/escrow"
	"github.com/cassiomorais/sokopay/internal/domain/outbox"
	"github.com/cassiomorais/sokopay/internal/domain/payment"
	"github.com/cassiomorais/sokopay/internal/domain/subscription"
	"github.com/cassiomorais/sokopay/internal/providers"
	"github.com/google/uuid"
)

// The in-memory repositories store and hand out copies, so a write that
// fails leaves the stored row untouched just like a rolled-back statement.

// --- Payment Repository Mock ---

// MockPaymentRepository is a mock implementation of payment.Repository.
type MockPaymentRepository struct {
	mu            sync.Mutex
	payments      map[uuid.UUID]*payment.Payment
	byCorrelation map[string]uuid.UUID

	CreateFunc             func(ctx context.Context, p *payment.Payment) error
	GetByIDFunc            func(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	GetByCorrelationIDFunc func(ctx context.Context, correlationID string) (*payment.Payment, error)
	UpdateFunc             func(ctx context.Context, p *payment.Payment) error
	ListFunc               func(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error)
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments:      make(map[uuid.UUID]*payment.Payment),
		byCorrelation: make(map[string]uuid.UUID),
	}
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byCorrelation[p.CorrelationID]; exists {
		return domainErrors.ErrDuplicateCorrelationID
	}
	m.payments[p.ID] = clonePayment(p)
	m.byCorrelation[p.CorrelationID] = p.ID
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (m *MockPaymentRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*payment.Payment, error) {
	if m.GetByCorrelationIDFunc != nil {
		return m.GetByCorrelationIDFunc(ctx, correlationID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byCorrelation[correlationID]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return clonePayment(m.payments[id]), nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return domainErrors.ErrPaymentNotFound
	}
	m.payments[p.ID] = clonePayment(p)
	return nil
}

func (m *MockPaymentRepository) List(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*payment.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		if filter.UserID != nil && (p.UserID == nil || *p.UserID != *filter.UserID) {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		result = append(result, clonePayment(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return page(result, filter.Limit, filter.Offset), nil
}

// Stored returns the persisted copy of a payment (test helper, no context needed).
func (m *MockPaymentRepository) Stored(id uuid.UUID) *payment.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok {
		return clonePayment(p)
	}
	return nil
}

// Count returns the number of stored payments.
func (m *MockPaymentRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func clonePayment(p *payment.Payment) *payment.Payment {
	c := *p
	c.Metadata = make(map[string]any, len(p.Metadata))
	for k, v := range p.Metadata {
		c.Metadata[k] = v
	}
	if p.UserID != nil {
		v := *p.UserID
		c.UserID = &v
	}
	if p.ExternalTransactionID != nil {
		v := *p.ExternalTransactionID
		c.ExternalTransactionID = &v
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

// --- Escrow Repository Mock ---

// MockEscrowRepository is a mock implementation of escrow.Repository.
type MockEscrowRepository struct {
	mu           sync.Mutex
	transactions map[uuid.UUID]*escrow.Transaction

	CreateFunc          func(ctx context.Context, t *escrow.Transaction) error
	GetByPaymentRefFunc func(ctx context.Context, paymentID uuid.UUID) (*escrow.Transaction, error)
	UpdateStatusFunc    func(ctx context.Context, t *escrow.Transaction) error
}

func NewMockEscrowRepository() *MockEscrowRepository {
	return &MockEscrowRepository{transactions: make(map[uuid.UUID]*escrow.Transaction)}
}

func (m *MockEscrowRepository) Create(ctx context.Context, t *escrow.Transaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *t
	m.transactions[t.ID] = &c
	return nil
}

func (m *MockEscrowRepository) GetByPaymentRef(ctx context.Context, paymentID uuid.UUID) (*escrow.Transaction, error) {
	if m.GetByPaymentRefFunc != nil {
		return m.GetByPaymentRefFunc(ctx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *escrow.Transaction
	for _, t := range m.transactions {
		if t.PaymentRef != paymentID {
			continue
		}
		if oldest == nil || t.CreatedAt.Before(oldest.CreatedAt) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, domainErrors.ErrEscrowNotFound
	}
	c := *oldest
	return &c, nil
}

func (m *MockEscrowRepository) UpdateStatus(ctx context.Context, t *escrow.Transaction) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[t.ID]; !ok {
		return domainErrors.ErrEscrowNotFound
	}
	c := *t
	m.transactions[t.ID] = &c
	return nil
}

// Add seeds an escrow transaction.
func (m *MockEscrowRepository) Add(t *escrow.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *t
	m.transactions[t.ID] = &c
}

// Stored returns the persisted copy of an escrow transaction.
func (m *MockEscrowRepository) Stored(id uuid.UUID) *escrow.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.transactions[id]; ok {
		c := *t
		return &c
	}
	return nil
}

// Count returns the number of stored escrow transactions.
func (m *MockEscrowRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}

// --- Subscription Repository Mock ---

// MockSubscriptionRepository is a mock implementation of subscription.Repository.
type MockSubscriptionRepository struct {
	mu            sync.Mutex
	subscriptions map[uuid.UUID]*subscription.SellerSubscription

	GetByIDFunc          func(ctx context.Context, id uuid.UUID) (*subscription.SellerSubscription, error)
	UpdateActivationFunc func(ctx context.Context, s *subscription.SellerSubscription) error
}

func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{subscriptions: make(map[uuid.UUID]*subscription.SellerSubscription)}
}

func (m *MockSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*subscription.SellerSubscription, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscriptions[id]
	if !ok {
		return nil, domainErrors.ErrSubscriptionNotFound
	}
	return cloneSubscription(s), nil
}

func (m *MockSubscriptionRepository) UpdateActivation(ctx context.Context, s *subscription.SellerSubscription) error {
	if m.UpdateActivationFunc != nil {
		return m.UpdateActivationFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[s.ID]; !ok {
		return domainErrors.ErrSubscriptionNotFound
	}
	m.subscriptions[s.ID] = cloneSubscription(s)
	return nil
}

// Add seeds a subscription.
func (m *MockSubscriptionRepository) Add(s *subscription.SellerSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[s.ID] = cloneSubscription(s)
}

// Stored returns the persisted copy of a subscription.
func (m *MockSubscriptionRepository) Stored(id uuid.UUID) *subscription.SellerSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subscriptions[id]; ok {
		return cloneSubscription(s)
	}
	return nil
}

func cloneSubscription(s *subscription.SellerSubscription) *subscription.SellerSubscription {
	c := *s
	if s.MpesaTxID != nil {
		v := *s.MpesaTxID
		c.MpesaTxID = &v
	}
	if s.ActivatedAt != nil {
		v := *s.ActivatedAt
		c.ActivatedAt = &v
	}
	return &c
}

// --- Callback Audit Repository Mock ---

// MockCallbackRepository is a mock implementation of callback.Repository.
type MockCallbackRepository struct {
	mu     sync.Mutex
	audits map[uuid.UUID]*callback.Audit

	InsertFunc          func(ctx context.Context, a *callback.Audit) error
	GetByIDFunc         func(ctx context.Context, id uuid.UUID) (*callback.Audit, error)
	MarkProcessedFunc   func(ctx context.Context, id uuid.UUID, outcome callback.Outcome, at time.Time) error
	RecordErrorFunc     func(ctx context.Context, id uuid.UUID, message string) error
	IncrementReplayFunc func(ctx context.Context, id uuid.UUID) error
	ListFunc            func(ctx context.Context, filter callback.ListFilter) ([]*callback.Audit, error)
}

func NewMockCallbackRepository() *MockCallbackRepository {
	return &MockCallbackRepository{audits: make(map[uuid.UUID]*callback.Audit)}
}

func (m *MockCallbackRepository) Insert(ctx context.Context, a *callback.Audit) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits[a.ID] = cloneAudit(a)
	return nil
}

func (m *MockCallbackRepository) GetByID(ctx context.Context, id uuid.UUID) (*callback.Audit, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.audits[id]
	if !ok {
		return nil, domainErrors.ErrCallbackNotFound
	}
	return cloneAudit(a), nil
}

func (m *MockCallbackRepository) MarkProcessed(ctx context.Context, id uuid.UUID, outcome callback.Outcome, at time.Time) error {
	if m.MarkProcessedFunc != nil {
		return m.MarkProcessedFunc(ctx, id, outcome, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.audits[id]
	if !ok {
		return domainErrors.ErrCallbackNotFound
	}
	a.MarkProcessed(outcome, at)
	return nil
}

func (m *MockCallbackRepository) RecordError(ctx context.Context, id uuid.UUID, message string) error {
	if m.RecordErrorFunc != nil {
		return m.RecordErrorFunc(ctx, id, message)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.audits[id]; ok && !a.Processed {
		a.ProcessingError = &message
	}
	return nil
}

func (m *MockCallbackRepository) IncrementReplay(ctx context.Context, id uuid.UUID) error {
	if m.IncrementReplayFunc != nil {
		return m.IncrementReplayFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.audits[id]; ok {
		a.ReplayCount++
	}
	return nil
}

func (m *MockCallbackRepository) List(ctx context.Context, filter callback.ListFilter) ([]*callback.Audit, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*callback.Audit, 0, len(m.audits))
	for _, a := range m.audits {
		if filter.Processed != nil && a.Processed != *filter.Processed {
			continue
		}
		if filter.HasCorrelation && a.CorrelationID == nil {
			continue
		}
		if filter.CorrelationID != nil && (a.CorrelationID == nil || *a.CorrelationID != *filter.CorrelationID) {
			continue
		}
		if filter.CreatedBefore != nil && !a.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		result = append(result, cloneAudit(a))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return page(result, filter.Limit, filter.Offset), nil
}

// All returns every stored audit record, oldest first.
func (m *MockCallbackRepository) All() []*callback.Audit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*callback.Audit, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, cloneAudit(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func cloneAudit(a *callback.Audit) *callback.Audit {
	c := *a
	c.RawBody = append([]byte(nil), a.RawBody...)
	c.Headers = make(map[string]string, len(a.Headers))
	for k, v := range a.Headers {
		c.Headers[k] = v
	}
	return &c
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *entry
	m.entries = append(m.entries, &c)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*outbox.Entry
	for _, e := range m.entries {
		if e.Status == outbox.StatusPending && e.RetryCount < e.MaxRetries {
			c := *e
			pending = append(pending, &c)
		}
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	return m.update(id, func(e *outbox.Entry) {
		now := time.Now()
		e.Status = outbox.StatusPublished
		e.PublishedAt = &now
	})
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	return m.update(id, func(e *outbox.Entry) {
		e.RetryCount++
		if e.RetryCount >= e.MaxRetries {
			e.Status = outbox.StatusFailed
		}
	})
}

func (m *MockOutboxRepository) update(id uuid.UUID, fn func(e *outbox.Entry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			fn(e)
			return nil
		}
	}
	return fmt.Errorf("outbox entry %s not found", id)
}

// EventTypes returns the event types recorded so far, in insertion order.
func (m *MockOutboxRepository) EventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		types = append(types, e.EventType)
	}
	return types
}

// Entries returns copies of the recorded entries.
func (m *MockOutboxRepository) Entries() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*outbox.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		c := *e
		out = append(out, &c)
	}
	return out
}

// --- Locker Mock ---

// MockLocker is an in-process implementation of the service Locker.
type MockLocker struct {
	mu   sync.Mutex
	held map[string]bool

	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: make(map[string]bool)}
}

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if m.TryLockFunc != nil {
		return m.TryLockFunc(ctx, key, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domainErrors.ErrLockAcquisitionFailed
	}
	m.held[key] = true
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
		return nil
	}, nil
}

// Hold marks key as locked by someone else.
func (m *MockLocker) Hold(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[key] = true
}

// --- Gateway Mock ---

// MockCharger records charge requests and answers with ChargeFunc.
type MockCharger struct {
	mu       sync.Mutex
	requests []providers.ChargeRequest

	ChargeFunc func(ctx context.Context, name string, req providers.ChargeRequest) (*providers.ChargeResult, error)
}

func (m *MockCharger) Charge(ctx context.Context, name string, req providers.ChargeRequest) (*providers.ChargeResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, name, req)
	}
	return &providers.ChargeResult{
		MerchantRequestID: "MR-" + req.CorrelationID,
		CheckoutRequestID: req.CorrelationID,
		ResponseCode:      "0",
	}, nil
}

// Requests returns the charge requests received so far.
func (m *MockCharger) Requests() []providers.ChargeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]providers.ChargeRequest(nil), m.requests...)
}

// --- Publisher Mock ---

// MockPublisher records published entries.
type MockPublisher struct {
	mu         sync.Mutex
	published  []*outbox.Entry
	deadLetter []*outbox.Entry

	PublishFunc func(ctx context.Context, entry *outbox.Entry) error
}

func (m *MockPublisher) Publish(ctx context.Context, entry *outbox.Entry) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, entry); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, entry)
	return nil
}

func (m *MockPublisher) PublishToDLQ(ctx context.Context, entry *outbox.Entry, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetter = append(m.deadLetter, entry)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// Published returns the entries published so far.
func (m *MockPublisher) Published() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Entry(nil), m.published...)
}

// DeadLettered returns the entries sent to the dead-letter stream.
func (m *MockPublisher) DeadLettered() []*outbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Entry(nil), m.deadLetter...)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
