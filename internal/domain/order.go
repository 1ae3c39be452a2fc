package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

var statusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusShipped:   1,
	OrderStatusDelivered: 2,
}

func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == OrderStatusCancelled
}

// CanTransitionTo enforces a forward-only lifecycle. Pending may move to any later
// state, Shipped only to Delivered, and only a Pending order can be cancelled. Setting
// the current status again is a no-op and always allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !next.Valid() || !s.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if next == OrderStatusCancelled {
		return s == OrderStatusPending
	}
	if s == OrderStatusCancelled {
		return false
	}
	return statusRank[next] > statusRank[s]
}

// OrderItem is a frozen copy of a cart line.
type OrderItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Product   *Product        `json:"product,omitempty"`
}

type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Status            OrderStatus     `json:"status"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	CheckoutSessionID string          `json:"checkout_session_id,omitempty"`
	Items             []OrderItem     `json:"items"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Materialize builds a Pending order from a cart snapshot. The order total is the
// cart's aggregate total, which must agree with its lines.
func Materialize(cart Cart, now time.Time) (Order, error) {
	if len(cart.Items) == 0 {
		return Order{}, fmt.Errorf("%w: cart is empty", ErrValidation)
	}
	if !cart.Consistent() {
		return Order{}, fmt.Errorf("cart %s aggregate does not match its items", cart.ID)
	}

	items := make([]OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	return Order{
		UserID:      cart.UserID,
		Status:      OrderStatusPending,
		TotalAmount: cart.TotalAmount,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
