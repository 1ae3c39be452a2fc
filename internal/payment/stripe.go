package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/joao-fontenele/storefront/internal/domain"
)

const metadataUserID = "userId"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// APIURL overrides the Stripe API base, e.g. for stripe-mock.
	APIURL string
}

type Stripe struct {
	api *client.API
	cfg StripeConfig
}

// NewStripe disables stripe-go's own network retries; Retrying is the only retry policy.
func NewStripe(cfg StripeConfig) *Stripe {
	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig(cfg.APIURL)),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig("")),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig("")),
	})
	return &Stripe{api: api, cfg: cfg}
}

func backendConfig(url string) *stripe.BackendConfig {
	cfg := &stripe.BackendConfig{MaxNetworkRetries: stripe.Int64(0)}
	if url != "" {
		cfg.URL = stripe.String(url)
	}
	return cfg
}

func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
	}
	for _, item := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(MinorUnits(item.UnitPrice)),
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}
	params.AddMetadata(metadataUserID, req.UserID)
	params.Context = ctx

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, classify(err)
	}
	return toSession(cs), nil
}

func (s *Stripe) GetSession(ctx context.Context, id string) (Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return Session{}, classify(err)
	}
	return toSession(cs), nil
}

func (s *Stripe) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	out := WebhookEvent{Type: string(event.Type)}
	if out.Type == EventCheckoutCompleted && event.Data != nil {
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: malformed checkout session: %v", domain.ErrValidation, err)
		}
		out.SessionID = cs.ID
	}
	return out, nil
}

func toSession(cs *stripe.CheckoutSession) Session {
	userID := cs.Metadata[metadataUserID]
	if userID == "" {
		userID = cs.ClientReferenceID
	}
	return Session{
		ID:     cs.ID,
		URL:    cs.URL,
		UserID: userID,
		Paid:   cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
}

// classify splits Stripe failures into retryable (network, throttling, 5xx) and
// permanent rejections.
func classify(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: checkout session: %s", domain.ErrNotFound, stripeErr.Msg)
		}
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: stripe: %s", domain.ErrUpstreamUnavailable, stripeErr.Msg)
		}
		return fmt.Errorf("%w: stripe: %s", domain.ErrUpstreamRejected, stripeErr.Msg)
	}
	return fmt.Errorf("%w: stripe: %v", domain.ErrUpstreamUnavailable, err)
}
