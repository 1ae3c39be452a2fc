package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CartItem carries the unit price captured when the product was added. It is never
// re-read from the catalog afterwards.
type CartItem struct {
	ID        string          `json:"id"`
	CartID    string          `json:"cart_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Product   *Product        `json:"product,omitempty"`
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the per-user aggregate. Quantity and TotalAmount always equal Totals(Items);
// they are only ever written by a full recompute.
type Cart struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []CartItem      `json:"items"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MaxLineQuantity bounds a single cart line. MaxCartTotal is the largest amount the
// NUMERIC(12,2) total columns hold.
const MaxLineQuantity = 10000

var MaxCartTotal = decimal.RequireFromString("9999999999.99")

// CheckLineQuantity enforces 1 <= quantity <= MaxLineQuantity.
func CheckLineQuantity(quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if quantity > MaxLineQuantity {
		return fmt.Errorf("%w: quantity cannot exceed %d", ErrValidation, MaxLineQuantity)
	}
	return nil
}

// CheckTotal rejects aggregates too large to store.
func CheckTotal(total decimal.Decimal) error {
	if total.GreaterThan(MaxCartTotal) {
		return fmt.Errorf("%w: cart total cannot exceed %s", ErrValidation, MaxCartTotal.StringFixed(2))
	}
	return nil
}

// Totals is the recompute rule for the cart aggregate.
func Totals(items []CartItem) (int, decimal.Decimal) {
	quantity := 0
	total := decimal.Zero
	for _, item := range items {
		quantity += item.Quantity
		total = total.Add(item.LineTotal())
	}
	return quantity, total
}

// Consistent reports whether the aggregate fields match the line items.
func (c Cart) Consistent() bool {
	quantity, total := Totals(c.Items)
	return quantity == c.Quantity && total.Equal(c.TotalAmount)
}

type CartItemAction string

const (
	ActionSet       CartItemAction = "set"
	ActionIncrement CartItemAction = "increment"
	ActionDecrement CartItemAction = "decrement"
)

// ItemMutation is the body of PUT /cart/{cartItemId}: either an absolute quantity or an
// increment/decrement step (defaulting to 1).
type ItemMutation struct {
	Action   CartItemAction `json:"action"`
	Quantity int            `json:"quantity"`
}

// Apply returns the new quantity for a line currently holding current. A result below 1
// is rejected; removing a line takes an explicit delete.
func (m ItemMutation) Apply(current int) (int, error) {
	switch m.Action {
	case "", ActionSet:
		if err := CheckLineQuantity(m.Quantity); err != nil {
			return 0, err
		}
		return m.Quantity, nil
	case ActionIncrement, ActionDecrement:
		step := m.Quantity
		if step == 0 {
			step = 1
		}
		if step < 0 || step > MaxLineQuantity {
			return 0, fmt.Errorf("%w: step must be between 1 and %d", ErrValidation, MaxLineQuantity)
		}
		if m.Action == ActionDecrement {
			step = -step
		}
		next := current + step
		if next < 1 {
			return 0, fmt.Errorf("%w: quantity cannot go below 1", ErrValidation)
		}
		if next > MaxLineQuantity {
			return 0, fmt.Errorf("%w: quantity cannot exceed %d", ErrValidation, MaxLineQuantity)
		}
		return next, nil
	default:
		return 0, fmt.Errorf("%w: unknown action %q", ErrValidation, m.Action)
	}
}

// AddItem is one entry of POST /cart/{userId}. Price, when sent, must match the catalog
// price at the time of the add.
type AddItem struct {
	ProductID string           `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

func (a AddItem) Validate() error {
	if a.ProductID == "" {
		return fmt.Errorf("%w: product_id is required", ErrValidation)
	}
	return CheckLineQuantity(a.Quantity)
}
