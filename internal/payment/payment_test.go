package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type flakyProvider struct {
	*Fake
	failures int
	err      error
	calls    int
}

func (p *flakyProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	p.calls++
	if p.calls <= p.failures {
		return Session{}, p.err
	}
	return p.Fake.CreateSession(ctx, req)
}

func newRetrying(next Provider, maxRetries uint64) *Retrying {
	r := NewRetrying(next, maxRetries, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return r
}

var request = SessionRequest{
	UserID:   "user-1",
	Currency: "usd",
	Items:    []LineItem{{Name: "Canvas Tote", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2}},
}

func TestRetrying(t *testing.T) {
	t.Run("recovers from transient failures", func(t *testing.T) {
		p := &flakyProvider{Fake: NewFake("http://shop/success?session_id={CHECKOUT_SESSION_ID}"), failures: 2, err: domain.ErrUpstreamUnavailable}
		s, err := newRetrying(p, 3).CreateSession(context.Background(), request)
		require.NoError(t, err)
		assert.Equal(t, 3, p.calls)
		assert.Contains(t, s.URL, s.ID)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		p := &flakyProvider{Fake: NewFake(""), failures: 10, err: fmt.Errorf("%w: 503", domain.ErrUpstreamUnavailable)}
		_, err := newRetrying(p, 2).CreateSession(context.Background(), request)
		assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
		assert.Equal(t, 3, p.calls)
	})

	t.Run("permanent failures are not retried", func(t *testing.T) {
		p := &flakyProvider{Fake: NewFake(""), failures: 10, err: fmt.Errorf("%w: card declined", domain.ErrUpstreamRejected)}
		_, err := newRetrying(p, 5).CreateSession(context.Background(), request)
		assert.ErrorIs(t, err, domain.ErrUpstreamRejected)
		assert.Equal(t, 1, p.calls)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"throttled", &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests, Msg: "slow down"}, domain.ErrUpstreamUnavailable},
		{"server error", &stripe.Error{HTTPStatusCode: http.StatusBadGateway}, domain.ErrUpstreamUnavailable},
		{"invalid request", &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Msg: "bad amount"}, domain.ErrUpstreamRejected},
		{"missing session", &stripe.Error{HTTPStatusCode: http.StatusNotFound}, domain.ErrNotFound},
		{"network", errors.New("dial tcp: connection refused"), domain.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1000), MinorUnits(decimal.RequireFromString("10.00")))
	assert.Equal(t, int64(1250), MinorUnits(decimal.RequireFromString("12.5")))
	assert.Equal(t, int64(1), MinorUnits(decimal.RequireFromString("0.005")))
}

func sign(payload []byte, secret string, ts time.Time) string {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stamp + "."))
	mac.Write(payload)
	return "t=" + stamp + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestStripeParseWebhook(t *testing.T) {
	s := NewStripe(StripeConfig{SecretKey: "sk_test_x", WebhookSecret: "whsec_test"})
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_test_1","object":"checkout.session"}}}`)

	event, err := s.ParseWebhook(payload, sign(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, event.Type)
	assert.Equal(t, "cs_test_1", event.SessionID)

	_, err = s.ParseWebhook(payload, sign(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStripeSingleAttemptPerCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"overloaded"}}`))
	}))
	defer server.Close()

	s := NewStripe(StripeConfig{SecretKey: "sk_test_x", APIURL: server.URL})

	_, err := s.CreateSession(context.Background(), request)
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Equal(t, int32(1), calls.Load())

	calls.Store(0)
	_, err = newRetrying(s, 2).CreateSession(context.Background(), request)
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFake(t *testing.T) {
	f := NewFake("http://shop/success?session_id={CHECKOUT_SESSION_ID}")

	s, err := f.CreateSession(context.Background(), request)
	require.NoError(t, err)
	assert.True(t, s.Paid)
	assert.Equal(t, "http://shop/success?session_id="+s.ID, s.URL)

	got, err := f.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)

	_, err = f.GetSession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	event, err := f.ParseWebhook([]byte(`{"type":"checkout.session.completed","session_id":"`+s.ID+`"}`), "")
	require.NoError(t, err)
	assert.Equal(t, s.ID, event.SessionID)
}
