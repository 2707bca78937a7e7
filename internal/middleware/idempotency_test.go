package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/sokopay/internal/repository/postgres"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
	getErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]*postgres.IdempotencyEntry)}
}

func (s *memoryStore) Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.entries[key], nil
}

func (s *memoryStore) Set(ctx context.Context, entry *postgres.IdempotencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{"correlationId":"CHK1"}`))
	})
}

func post(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/initiate", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	handler := Idempotency(store, time.Hour, zerolog.Nop())(countingHandler(&calls, http.StatusCreated))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, post(`{"amount":50}`, "k1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, post(`{"amount":50}`, "k1"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	entry := store.entries["k1"]
	require.NotNil(t, entry)
	assert.WithinDuration(t, time.Now().Add(time.Hour), entry.ExpiresAt, time.Minute)
}

func TestIdempotency_DifferentBodyRejected(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	handler := Idempotency(store, time.Hour, zerolog.Nop())(countingHandler(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), post(`{"amount":50}`, "k1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, post(`{"amount":75}`, "k1"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "idempotency_mismatch")
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	handler := Idempotency(store, time.Hour, zerolog.Nop())(countingHandler(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), post(`{}`, ""))
	handler.ServeHTTP(httptest.NewRecorder(), post(`{}`, ""))

	assert.Equal(t, 2, calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_ServerErrorsNotStored(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	handler := Idempotency(store, time.Hour, zerolog.Nop())(countingHandler(&calls, http.StatusInternalServerError))

	handler.ServeHTTP(httptest.NewRecorder(), post(`{}`, "k1"))
	handler.ServeHTTP(httptest.NewRecorder(), post(`{}`, "k1"))

	assert.Equal(t, 2, calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_StoreFailureStillServes(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("connection refused")
	calls := 0
	handler := Idempotency(store, time.Hour, zerolog.Nop())(countingHandler(&calls, http.StatusCreated))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, post(`{}`, "k1"))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestIdempotency_BodyStillReadableDownstream(t *testing.T) {
	store := newMemoryStore()
	var seen string
	handler := Idempotency(store, time.Hour, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, err := io.Copy(buf, r.Body)
		require.NoError(t, err)
		seen = buf.String()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), post(`{"amount":50}`, "k1"))
	assert.Equal(t, `{"amount":50}`, seen)
}

func TestIdempotency_OversizedBodyRejected(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	handler := Idempotency(store, time.Hour, zerolog.Nop())(countingHandler(&calls, http.StatusCreated))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, post(strings.Repeat("a", maxIdempotencyBodySize+1), "k1"))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "payload_too_large")
	assert.Zero(t, calls, "a truncated body must never reach the handler")
	assert.Empty(t, store.entries)
}

func TestIdempotency_BodyAtLimitAccepted(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	handler := Idempotency(store, time.Hour, zerolog.Nop())(countingHandler(&calls, http.StatusCreated))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, post(strings.Repeat("a", maxIdempotencyBodySize), "k1"))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
}
