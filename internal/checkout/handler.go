package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/httpx"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/payment"
)

var (
	meter            = otel.Meter("storefront/checkout")
	sessionsCount, _ = meter.Int64Counter("storefront.checkout.sessions",
		metric.WithDescription("Checkout session attempts by outcome"))
)

const maxWebhookBytes = 64 << 10

type CartReader interface {
	GetByUserID(ctx context.Context, userID string) (domain.Cart, error)
}

type SessionStore interface {
	Create(ctx context.Context, s domain.CheckoutSession) error
	Get(ctx context.Context, id string) (domain.CheckoutSession, error)
	Complete(ctx context.Context, id, orderID string) error
}

type Materializer interface {
	Materialize(ctx context.Context, in orders.MaterializeInput) (domain.Order, bool, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
}

type Handler struct {
	carts    CartReader
	sessions SessionStore
	orders   Materializer
	users    UserLookup
	provider payment.Provider
	notifier *orders.Notifier
	currency string
	logger   *slog.Logger
}

type Deps struct {
	Carts    CartReader
	Sessions SessionStore
	Orders   Materializer
	Users    UserLookup
	Provider payment.Provider
	Notifier *orders.Notifier
	Currency string
}

func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	return &Handler{
		carts:    deps.Carts,
		sessions: deps.Sessions,
		orders:   deps.Orders,
		users:    deps.Users,
		provider: deps.Provider,
		notifier: deps.Notifier,
		currency: deps.Currency,
		logger:   logger,
	}
}

type checkoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// HandleCheckout opens a hosted payment session for the caller's cart as it is now and
// stores that snapshot against the session id.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())

	c, err := h.carts.GetByUserID(r.Context(), user.ID)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to get cart for checkout", "user_id", user.ID)
		return
	}
	if len(c.Items) == 0 {
		h.record(r.Context(), "empty_cart")
		httpx.Fail(w, h.logger, fmt.Errorf("%w: cart is empty", domain.ErrValidation), "checkout rejected")
		return
	}

	req := payment.SessionRequest{UserID: user.ID, Currency: h.currency}
	for _, item := range c.Items {
		name := item.ProductID
		if item.Product != nil {
			name = item.Product.Name
		}
		req.Items = append(req.Items, payment.LineItem{Name: name, UnitPrice: item.Price, Quantity: item.Quantity})
	}

	ps, err := h.provider.CreateSession(r.Context(), req)
	if err != nil {
		h.record(r.Context(), "provider_error")
		httpx.Fail(w, h.logger, err, "failed to create checkout session", "user_id", user.ID)
		return
	}

	session := domain.CheckoutSession{
		ID:          ps.ID,
		UserID:      user.ID,
		CartID:      c.ID,
		Items:       c.Items,
		TotalAmount: c.TotalAmount,
		Currency:    h.currency,
		Status:      domain.CheckoutStatusOpen,
		URL:         ps.URL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.sessions.Create(r.Context(), session); err != nil {
		httpx.Fail(w, h.logger, err, "failed to store checkout session", "session_id", ps.ID)
		return
	}

	h.record(r.Context(), "created")
	h.logger.Info("checkout session created", "session_id", ps.ID, "user_id", user.ID, "total", c.TotalAmount.StringFixed(2))
	httpx.WriteJSON(w, h.logger, http.StatusOK, checkoutResponse{URL: ps.URL, SessionID: ps.ID})
}

type saveOrderRequest struct {
	SessionID string `json:"session_id"`
}

// HandleSaveOrder confirms a paid session for the caller and places its order.
// Repeating the call returns the same order.
func (h *Handler) HandleSaveOrder(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())

	var req saveOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, h.logger, err, "invalid save order request")
		return
	}
	if req.SessionID == "" {
		httpx.Fail(w, h.logger, fmt.Errorf("%w: session_id is required", domain.ErrValidation), "invalid save order request")
		return
	}

	order, created, err := h.confirm(r.Context(), req.SessionID, user.ID)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to save order", "session_id", req.SessionID)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httpx.WriteJSON(w, h.logger, status, order)
}

// HandleWebhook confirms sessions reported complete by the provider. Unknown sessions
// are acknowledged so the provider stops redelivering them.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		httpx.Fail(w, h.logger, fmt.Errorf("%w: unreadable body", domain.ErrValidation), "failed to read webhook")
		return
	}

	event, err := h.provider.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		httpx.Fail(w, h.logger, err, "rejected webhook")
		return
	}

	if event.Type == payment.EventCheckoutCompleted {
		_, _, err := h.confirm(r.Context(), event.SessionID, "")
		switch {
		case errors.Is(err, domain.ErrNotFound):
			h.logger.Warn("webhook for unknown checkout session", "session_id", event.SessionID)
		case err != nil:
			httpx.Fail(w, h.logger, err, "failed to confirm checkout from webhook", "session_id", event.SessionID)
			return
		}
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]bool{"received": true})
}

// confirm materializes the session snapshot once the provider reports it paid. An empty
// ownerID skips the ownership check.
func (h *Handler) confirm(ctx context.Context, sessionID, ownerID string) (domain.Order, bool, error) {
	stored, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Order{}, false, err
	}
	if ownerID != "" && stored.UserID != ownerID {
		return domain.Order{}, false, fmt.Errorf("%w: checkout session belongs to another user", domain.ErrForbidden)
	}

	if stored.Status != domain.CheckoutStatusCompleted {
		remote, err := h.provider.GetSession(ctx, sessionID)
		if err != nil {
			return domain.Order{}, false, err
		}
		if remote.UserID != "" && remote.UserID != stored.UserID {
			return domain.Order{}, false, fmt.Errorf("%w: checkout session owner mismatch", domain.ErrForbidden)
		}
		if !remote.Paid {
			return domain.Order{}, false, fmt.Errorf("%w: payment not completed", domain.ErrConflict)
		}
	}

	snapshot := stored.Cart()
	order, created, err := h.orders.Materialize(ctx, orders.MaterializeInput{
		UserID:            stored.UserID,
		Snapshot:          &snapshot,
		CheckoutSessionID: stored.ID,
	})
	if err != nil {
		return domain.Order{}, false, err
	}

	if stored.Status != domain.CheckoutStatusCompleted {
		if err := h.sessions.Complete(ctx, stored.ID, order.ID); err != nil {
			return domain.Order{}, false, fmt.Errorf("complete checkout session: %w", err)
		}
	}

	if created {
		h.logger.Info("order placed", "order_id", order.ID, "user_id", order.UserID, "session_id", stored.ID, "total", order.TotalAmount.StringFixed(2))
		h.notifyPlaced(ctx, order)
	}

	return order, created, nil
}

func (h *Handler) notifyPlaced(ctx context.Context, order domain.Order) {
	if h.notifier == nil {
		return
	}
	email := ""
	if user, err := h.users.GetByID(ctx, order.UserID); err == nil {
		email = user.Email
	} else {
		h.logger.Warn("failed to resolve email for order notification", "error", err, "user_id", order.UserID)
	}
	h.notifier.OrderPlaced(ctx, order, email)
}

func (h *Handler) record(ctx context.Context, outcome string) {
	sessionsCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
