package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/domain"
)

// CartLocker serializes order placement with every other writer of the same cart.
type CartLocker interface {
	WithLockedCart(ctx context.Context, userID string, fn func(tx *sql.Tx, c domain.Cart) error) error
}

type OrderRepository struct {
	db    *sql.DB
	carts CartLocker
	now   func() time.Time
}

func NewOrderRepository(db *sql.DB, carts CartLocker) *OrderRepository {
	return &OrderRepository{db: db, carts: carts, now: time.Now}
}

// MaterializeInput selects what becomes the order. A nil Snapshot means the live cart.
// A non-empty CheckoutSessionID makes the call idempotent per session.
type MaterializeInput struct {
	UserID            string
	Snapshot          *domain.Cart
	CheckoutSessionID string
}

// Materialize turns a cart into a Pending order and removes the ordered lines from the
// cart, recomputing it, in one transaction under the cart lock. created is false when
// the checkout session already produced an order, which is then returned unchanged.
func (r *OrderRepository) Materialize(ctx context.Context, in MaterializeInput) (order domain.Order, created bool, err error) {
	var existingID string

	err = r.carts.WithLockedCart(ctx, in.UserID, func(tx *sql.Tx, live domain.Cart) error {
		if in.CheckoutSessionID != "" {
			err := tx.QueryRowContext(ctx, `
				SELECT id FROM orders WHERE checkout_session_id = $1
			`, in.CheckoutSessionID).Scan(&existingID)
			if err == nil {
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		source := live
		if in.Snapshot != nil {
			source = *in.Snapshot
			source.ID = live.ID
			source.UserID = live.UserID
		}

		o, err := domain.Materialize(source, r.now().UTC())
		if err != nil {
			return err
		}
		o.ID = uuid.New().String()
		o.CheckoutSessionID = in.CheckoutSessionID

		if err := insertOrder(ctx, tx, &o); err != nil {
			return err
		}
		if err := removeOrderedLines(ctx, tx, live.ID, source.Items); err != nil {
			return err
		}
		if _, err := cart.Recompute(ctx, tx, live); err != nil {
			return err
		}

		order = o
		return nil
	})
	if err != nil {
		return domain.Order{}, false, err
	}

	if existingID != "" {
		order, err = r.GetByID(ctx, existingID)
		return order, false, err
	}

	ordersPlaced.Add(ctx, 1)
	return order, true, nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	var sessionID *string
	if o.CheckoutSessionID != "" {
		sessionID = &o.CheckoutSessionID
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, total_amount, checkout_session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, o.ID, o.UserID, o.Status, o.TotalAmount, sessionID, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.ID = uuid.New().String()
		item.OrderID = o.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

// removeOrderedLines subtracts the ordered quantities from the cart. A line the buyer
// did not touch since checkout is deleted outright; quantity added afterwards stays.
func removeOrderedLines(ctx context.Context, tx *sql.Tx, cartID string, ordered []domain.CartItem) error {
	for _, item := range ordered {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE cart_id = $1 AND product_id = $2 AND quantity <= $3
		`, cartID, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("purge cart line: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE cart_items SET quantity = quantity - $3
			WHERE cart_id = $1 AND product_id = $2
		`, cartID, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("reduce cart line: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}

	orders, err := r.query(ctx, `WHERE o.id = $1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return orders[0], nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []domain.Order{}, nil
	}
	return r.query(ctx, `WHERE o.user_id = $1`, userID)
}

func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	return r.query(ctx, ``)
}

// query loads orders and then all of their items in a single batched query.
func (r *OrderRepository) query(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.user_id, o.status, o.total_amount, COALESCE(o.checkout_session_id, ''), o.created_at, o.updated_at
		FROM orders o
		`+where+`
		ORDER BY o.created_at DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.CheckoutSessionID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Items = []domain.OrderItem{}
		orderMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price,
		       p.name, p.price, p.stock, p.image, p.category_id, c.name, p.is_archive, p.created_at, p.updated_at
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		JOIN categories c ON c.id = p.category_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var item domain.OrderItem
		p := &domain.Product{}
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price,
			&p.Name, &p.Price, &p.Stock, &p.Image, &p.CategoryID, &p.Category, &p.Archived, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.ID = item.ProductID
		item.Product = p
		order := orderMap[item.OrderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// UpdateStatus applies a lifecycle transition and returns the updated order together
// with the status it replaced. Illegal transitions are conflicts.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, next domain.OrderStatus) (domain.Order, domain.OrderStatus, error) {
	if !next.Valid() {
		return domain.Order{}, "", fmt.Errorf("%w: unknown status %q", domain.ErrValidation, next)
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.Order{}, "", fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, "", err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.OrderStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, "", fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, "", err
	}

	if !current.CanTransitionTo(next) {
		return domain.Order{}, "", fmt.Errorf("%w: order is %s and cannot become %s", domain.ErrConflict, current, next)
	}

	if current != next {
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET status = $1, updated_at = NOW()
			WHERE id = $2
		`, next, id); err != nil {
			return domain.Order{}, "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, "", err
	}

	order, err := r.GetByID(ctx, id)
	return order, current, err
}
