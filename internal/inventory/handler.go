package inventory

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/httpx"
)

type Store interface {
	ListAll(ctx context.Context) ([]domain.StockLevel, error)
	GetStock(ctx context.Context, productID string) (domain.StockLevel, error)
	Reserve(ctx context.Context, productID string, quantity int) (domain.StockLevel, error)
	Release(ctx context.Context, productID string, quantity int) (domain.StockLevel, error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

func (h *Handler) HandleListStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListAll(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to list stock")
		return
	}

	h.logger.Info("stock listed", "count", len(items))
	httpx.WriteJSON(w, h.logger, http.StatusOK, items)
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")

	stock, err := h.store.GetStock(r.Context(), productID)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to get stock", "product_id", productID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, stock)
}

// StockRequest is the body of reserve and release calls.
type StockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")

	var req StockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, h.logger, err, "invalid reserve request")
		return
	}

	stock, err := h.store.Reserve(r.Context(), productID, req.Quantity)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to reserve stock", "product_id", productID, "quantity", req.Quantity)
		return
	}

	h.logger.Info("stock reserved", "product_id", productID, "quantity", req.Quantity, "remaining", stock.Stock)
	httpx.WriteJSON(w, h.logger, http.StatusOK, stock)
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")

	var req StockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, h.logger, err, "invalid release request")
		return
	}

	stock, err := h.store.Release(r.Context(), productID, req.Quantity)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to release stock", "product_id", productID, "quantity", req.Quantity)
		return
	}

	h.logger.Info("stock released", "product_id", productID, "quantity", req.Quantity, "remaining", stock.Stock)
	httpx.WriteJSON(w, h.logger, http.StatusOK, stock)
}
