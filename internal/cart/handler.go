package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/httpx"
)

type Store interface {
	GetByUserID(ctx context.Context, userID string) (domain.Cart, error)
	AddItems(ctx context.Context, userID string, items []domain.AddItem) (domain.Cart, error)
	UpdateItem(ctx context.Context, userID, itemID string, m domain.ItemMutation) (domain.Cart, error)
	DeleteItem(ctx context.Context, userID, itemID string) (domain.Cart, error)
	Clear(ctx context.Context, userID string) (domain.Cart, error)
}

type Handler struct {
	store      Store
	publicBase string
	logger     *slog.Logger
}

func NewHandler(store Store, publicBase string, logger *slog.Logger) *Handler {
	return &Handler{
		store:      store,
		publicBase: publicBase,
		logger:     logger,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if !h.authorize(w, r, userID) {
		return
	}

	c, err := h.store.GetByUserID(r.Context(), userID)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to get cart", "user_id", userID)
		return
	}

	h.respond(w, http.StatusOK, c)
}

// HandleAdd accepts one item object or an array of them.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if !h.authorize(w, r, userID) {
		return
	}

	var raw json.RawMessage
	if err := httpx.DecodeJSON(r, &raw); err != nil {
		httpx.Fail(w, h.logger, err, "invalid add to cart request")
		return
	}
	items, err := decodeItems(raw)
	if err != nil {
		httpx.Fail(w, h.logger, err, "invalid add to cart request")
		return
	}

	c, err := h.store.AddItems(r.Context(), userID, items)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to add items to cart", "user_id", userID)
		return
	}

	h.logger.Info("items added to cart", "cart_id", c.ID, "count", len(items), "quantity", c.Quantity)
	h.respond(w, http.StatusOK, c)
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())
	itemID := r.PathValue("cartItemId")

	var m domain.ItemMutation
	if err := httpx.DecodeJSON(r, &m); err != nil {
		httpx.Fail(w, h.logger, err, "invalid cart item update")
		return
	}

	c, err := h.store.UpdateItem(r.Context(), user.ID, itemID, m)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to update cart item", "item_id", itemID)
		return
	}

	h.logger.Info("cart item updated", "cart_id", c.ID, "item_id", itemID, "action", m.Action)
	h.respond(w, http.StatusOK, c)
}

func (h *Handler) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())
	itemID := r.PathValue("cartItemId")

	c, err := h.store.DeleteItem(r.Context(), user.ID, itemID)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to delete cart item", "item_id", itemID)
		return
	}

	h.logger.Info("cart item deleted", "cart_id", c.ID, "item_id", itemID)
	h.respond(w, http.StatusOK, c)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.FromContext(r.Context())

	c, err := h.store.Clear(r.Context(), user.ID)
	if err != nil {
		httpx.Fail(w, h.logger, err, "failed to clear cart", "user_id", user.ID)
		return
	}

	h.logger.Info("cart cleared", "cart_id", c.ID)
	h.respond(w, http.StatusOK, c)
}

func (h *Handler) respond(w http.ResponseWriter, status int, c domain.Cart) {
	for i := range c.Items {
		if c.Items[i].Product != nil {
			c.Items[i].Product.ResolveImage(h.publicBase)
		}
	}
	httpx.WriteJSON(w, h.logger, status, c)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, ownerID string) bool {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.Fail(w, h.logger, domain.ErrUnauthenticated, "no user in context")
		return false
	}
	if !auth.CanAccessUser(caller, ownerID) {
		httpx.Fail(w, h.logger, fmt.Errorf("%w: not your cart", domain.ErrForbidden), "access denied", "user_id", caller.ID)
		return false
	}
	return true
}

func decodeItems(raw json.RawMessage) ([]domain.AddItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []domain.AddItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: invalid cart items", domain.ErrValidation)
		}
		return items, nil
	}

	var item domain.AddItem
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return nil, fmt.Errorf("%w: invalid cart item", domain.ErrValidation)
	}
	return []domain.AddItem{item}, nil
}
