package orders

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/export"
	"github.com/joao-fontenele/storefront/internal/httpx"
)

type Store interface {
	GetByID(ctx context.Context, id string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, next domain.OrderStatus) (domain.Order, domain.OrderStatus, error)
}

type Handler struct {
	store      Store
	notifier   *Notifier
	publicBase string
	logger     *slog.Logger
}

func NewHandler(store Store, notifier *Notifier, publicBase string, logger *slog.Logger) *Handler {
	return &Handler{
		store:      store,
		notifier:   notifier,
		publicBase: publicBase,
		logger:     logger,
	}
}

// HandleHistory lists a user's orders, newest first.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.Fail(w, h.logger, domain.ErrUnauthenticated, "no user in context")
		return
	}
	if !auth.CanAccessUser(caller, userID) {
		httpx.Fail(w, h.logger, fmt.Errorf("%w: not your orders", domain.ErrForbidden), "access denied", "user_id", caller.ID)
		return
	}

	orders, err := h.store.ListByUser(r.Context(), userID)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to list order history", "user_id", userID)
		return
	}

	h.logger.Info("order history listed", "user_id", userID, "count", len(orders))
	h.respond(w, orders)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.List(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to list orders")
		return
	}

	h.logger.Info("orders listed", "count", len(orders))
	h.respond(w, orders)
}

// HandleGet returns one order. Customers only see their own.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("orderId")
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.Fail(w, h.logger, domain.ErrUnauthenticated, "no user in context")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to get order", "id", id)
		return
	}
	if !auth.CanAccessUser(caller, order.UserID) {
		httpx.Fail(w, h.logger, fmt.Errorf("%w: not your order", domain.ErrForbidden), "access denied", "user_id", caller.ID, "order_id", id)
		return
	}

	h.respond(w, order)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("orderId")

	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, h.logger, err, "invalid status update")
		return
	}

	order, from, err := h.store.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to update order status", "id", id)
		return
	}

	if from != order.Status && h.notifier != nil {
		h.notifier.StatusChanged(r.Context(), order, from)
	}

	h.logger.Info("order status updated", "order_id", order.ID, "from", from, "status", order.Status)
	h.respond(w, order)
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.List(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to list orders for export")
		return
	}

	sheet := export.Sheet{
		Name:    "Orders",
		Headers: []string{"ID", "UserID", "Status", "Items", "Quantity", "TotalAmount", "CreatedAt", "UpdatedAt"},
	}
	for _, o := range orders {
		quantity := 0
		for _, item := range o.Items {
			quantity += item.Quantity
		}
		sheet.Rows = append(sheet.Rows, []any{
			o.ID, o.UserID, string(o.Status), len(o.Items), quantity, o.TotalAmount.StringFixed(2),
			o.CreatedAt.Format("2006-01-02 15:04:05"), o.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	if err := sheet.Write(w, "orders.xlsx"); err != nil {
		httpx.Fail(w, h.logger, err, "failed to export orders")
		return
	}
	h.logger.Info("orders exported", "count", len(orders))
}

func (h *Handler) respond(w http.ResponseWriter, v any) {
	switch o := v.(type) {
	case domain.Order:
		resolveImages(&o, h.publicBase)
		v = o
	case []domain.Order:
		for i := range o {
			resolveImages(&o[i], h.publicBase)
		}
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, v)
}

func resolveImages(o *domain.Order, publicBase string) {
	for i := range o.Items {
		if o.Items[i].Product != nil {
			o.Items[i].Product.ResolveImage(publicBase)
		}
	}
}
