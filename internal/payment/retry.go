package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// Retrying retries transient provider failures with exponential backoff. After the
// attempts are used up the last ErrUpstreamUnavailable is returned.
type Retrying struct {
	next       Provider
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

func NewRetrying(next Provider, maxRetries uint64, logger *slog.Logger) *Retrying {
	return &Retrying{
		next:       next,
		maxRetries: maxRetries,
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}
}

func (r *Retrying) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	var s Session
	err := r.retry(ctx, "create session", func() error {
		var err error
		s, err = r.next.CreateSession(ctx, req)
		return err
	})
	return s, err
}

func (r *Retrying) GetSession(ctx context.Context, id string) (Session, error) {
	var s Session
	err := r.retry(ctx, "get session", func() error {
		var err error
		s, err = r.next.GetSession(ctx, id)
		return err
	})
	return s, err
}

func (r *Retrying) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	return r.next.ParseWebhook(payload, signature)
}

func (r *Retrying) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			return backoff.Permanent(err)
		}
		r.logger.WarnContext(ctx, "payment provider call failed", "op", op, "attempt", attempt, "error", err)
		return err
	}, policy)
}
