package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutStatus string

const (
	CheckoutStatusOpen      CheckoutStatus = "open"
	CheckoutStatusCompleted CheckoutStatus = "completed"
)

// CheckoutSession binds a hosted payment session to the cart contents at the moment it
// was created. Confirmation materializes this snapshot, not whatever the cart holds by
// then.
type CheckoutSession struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	CartID      string          `json:"cart_id"`
	Items       []CartItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Status      CheckoutStatus  `json:"status"`
	URL         string          `json:"url"`
	OrderID     string          `json:"order_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Cart returns the snapshot as a cart value suitable for Materialize.
func (s CheckoutSession) Cart() Cart {
	quantity, _ := Totals(s.Items)
	return Cart{
		ID:          s.CartID,
		UserID:      s.UserID,
		Quantity:    quantity,
		TotalAmount: s.TotalAmount,
		Items:       s.Items,
	}
}
