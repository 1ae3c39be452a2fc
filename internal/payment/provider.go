package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

const EventCheckoutCompleted = "checkout.session.completed"

type LineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

type SessionRequest struct {
	UserID   string
	Currency string
	Items    []LineItem
}

type Session struct {
	ID     string
	URL    string
	UserID string
	Paid   bool
}

type WebhookEvent struct {
	Type      string
	SessionID string
}

// Provider is a hosted checkout. Implementations report transient failures wrapped in
// domain.ErrUpstreamUnavailable and permanent ones in domain.ErrUpstreamRejected.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// MinorUnits converts an amount to cents, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
