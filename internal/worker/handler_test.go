package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/email"
	"github.com/joao-fontenele/storefront/internal/messaging"
)

const testAPIKey = "internal-key"

// fakeStorefront serves the internal stock and order routes the worker calls.
type fakeStorefront struct {
	mu        sync.Mutex
	stock     map[string]int
	statuses  map[string]domain.OrderStatus
	failStock bool
}

func (f *fakeStorefront) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/stock/{productId}/{action}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(auth.APIKeyHeader) != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			Quantity int `json:"quantity"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failStock {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		id := r.PathValue("productId")
		available, ok := f.stock[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.PathValue("action") {
		case "reserve":
			if available < req.Quantity {
				w.WriteHeader(http.StatusConflict)
				return
			}
			f.stock[id] = available - req.Quantity
		case "release":
			f.stock[id] = available + req.Quantity
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("PUT /api/internal/order/{orderId}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(auth.APIKeyHeader) != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			Status domain.OrderStatus `json:"status"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.statuses[r.PathValue("orderId")] = req.Status
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (f *fakeStorefront) stockOf(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[id]
}

func (f *fakeStorefront) statusOf(id string) domain.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []email.Message
}

func (m *recordingMailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func setup(t *testing.T, stock map[string]int) (*OrderProcessor, *fakeStorefront, *recordingMailer) {
	t.Helper()
	store := &fakeStorefront{stock: stock, statuses: map[string]domain.OrderStatus{}}
	server := httptest.NewServer(store.handler())
	t.Cleanup(server.Close)

	mailer := &recordingMailer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrderProcessor(server.URL, testAPIKey, mailer, server.Client(), logger), store, mailer
}

func placed(t *testing.T, items ...domain.OrderItem) messaging.Message {
	t.Helper()
	payload, err := json.Marshal(domain.OrderPlacedEvent{
		OrderID:     "order-1",
		UserID:      "user-1",
		Email:       "ana@example.com",
		Items:       items,
		TotalAmount: decimal.RequireFromString("45.00"),
	})
	require.NoError(t, err)
	return messaging.Message{Topic: domain.TopicOrderPlaced, EventType: domain.TopicOrderPlaced, Key: "order-1", Payload: payload}
}

func TestHandleReservesAndConfirms(t *testing.T) {
	processor, store, mailer := setup(t, map[string]int{"tote": 5, "jacket": 2})

	err := processor.Handle(context.Background(), placed(t,
		domain.OrderItem{ProductID: "tote", Quantity: 2},
		domain.OrderItem{ProductID: "jacket", Quantity: 2},
	))
	require.NoError(t, err)

	assert.Equal(t, 3, store.stockOf("tote"))
	assert.Equal(t, 0, store.stockOf("jacket"))
	assert.Empty(t, store.statusOf("order-1"))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ana@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Subject, "Confirmation")
	assert.Contains(t, mailer.sent[0].Body, "45.00")
}

func TestHandleCancelsOnInsufficientStock(t *testing.T) {
	processor, store, mailer := setup(t, map[string]int{"tote": 5, "jacket": 1})

	err := processor.Handle(context.Background(), placed(t,
		domain.OrderItem{ProductID: "tote", Quantity: 2},
		domain.OrderItem{ProductID: "jacket", Quantity: 2},
	))
	require.NoError(t, err)

	assert.Equal(t, 5, store.stockOf("tote"), "partial reservation must be released")
	assert.Equal(t, 1, store.stockOf("jacket"))
	assert.Equal(t, domain.OrderStatusCancelled, store.statusOf("order-1"))
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].Subject, "Cancelled")
}

func TestHandleRetriesOnUpstreamFailure(t *testing.T) {
	processor, store, mailer := setup(t, map[string]int{"tote": 5})
	store.failStock = true

	err := processor.Handle(context.Background(), placed(t, domain.OrderItem{ProductID: "tote", Quantity: 1}))
	require.Error(t, err)
	assert.Empty(t, store.statusOf("order-1"))
	assert.Empty(t, mailer.sent)
}

func TestHandleSkipsOtherEvents(t *testing.T) {
	processor, _, mailer := setup(t, map[string]int{})

	err := processor.Handle(context.Background(), messaging.Message{EventType: domain.TopicOrderStatusChanged, Payload: []byte(`{}`)})
	require.NoError(t, err)

	err = processor.Handle(context.Background(), messaging.Message{EventType: domain.TopicOrderPlaced, Payload: []byte(`not json`)})
	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
}
