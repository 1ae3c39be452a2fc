package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/pgutil"
)

var (
	meter             = otel.Meter("storefront/cart")
	mutationsCount, _ = meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Committed cart mutations by operation"))
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// Create opens an empty cart for a new user. It runs on the caller's transaction.
func (r *CartRepository) Create(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, quantity, total_amount, updated_at)
		VALUES ($1, $2, 0, 0, NOW())
	`, uuid.New().String(), userID)
	return err
}

func (r *CartRepository) GetByUserID(ctx context.Context, userID string) (domain.Cart, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return domain.Cart{}, fmt.Errorf("cart for user %s: %w", userID, domain.ErrNotFound)
	}

	var c domain.Cart
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, quantity, total_amount, updated_at
		FROM carts
		WHERE user_id = $1
	`, userID).Scan(&c.ID, &c.UserID, &c.Quantity, &c.TotalAmount, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, fmt.Errorf("cart for user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Cart{}, err
	}

	c.Items, err = loadItems(ctx, r.db, c.ID)
	if err != nil {
		return domain.Cart{}, err
	}

	return c, nil
}

// WithLockedCart runs fn in a transaction holding the cart row lock, so all writers of
// one cart are serialized. The cart passed to fn reflects the state under the lock.
func (r *CartRepository) WithLockedCart(ctx context.Context, userID string, fn func(tx *sql.Tx, cart domain.Cart) error) error {
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("cart for user %s: %w", userID, domain.ErrNotFound)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var c domain.Cart
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, quantity, total_amount, updated_at
		FROM carts
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&c.ID, &c.UserID, &c.Quantity, &c.TotalAmount, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("cart for user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}

	c.Items, err = loadItems(ctx, tx, c.ID)
	if err != nil {
		return err
	}

	if err := fn(tx, c); err != nil {
		return err
	}

	return tx.Commit()
}

// mutate wraps WithLockedCart for the cart's own operations: it recomputes after fn and
// returns the cart as committed.
func (r *CartRepository) mutate(ctx context.Context, userID, operation string, fn func(tx *sql.Tx, cart domain.Cart) error) (domain.Cart, error) {
	var result domain.Cart
	err := r.WithLockedCart(ctx, userID, func(tx *sql.Tx, c domain.Cart) error {
		if err := fn(tx, c); err != nil {
			return err
		}
		updated, err := Recompute(ctx, tx, c)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		if pgutil.OutOfRange(err) {
			return domain.Cart{}, fmt.Errorf("%w: cart quantity or total out of range", domain.ErrValidation)
		}
		return domain.Cart{}, err
	}

	mutationsCount.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	return result, nil
}

// AddItems merges each entry into the cart. The unit price is captured from the catalog;
// an existing line for the same product keeps its captured price and gains quantity.
func (r *CartRepository) AddItems(ctx context.Context, userID string, items []domain.AddItem) (domain.Cart, error) {
	if len(items) == 0 {
		return domain.Cart{}, fmt.Errorf("%w: no items to add", domain.ErrValidation)
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return domain.Cart{}, err
		}
	}

	return r.mutate(ctx, userID, "add", func(tx *sql.Tx, c domain.Cart) error {
		merged := make(map[string]int, len(c.Items))
		for _, line := range c.Items {
			merged[line.ProductID] = line.Quantity
		}

		for _, item := range items {
			merged[item.ProductID] += item.Quantity
			if err := domain.CheckLineQuantity(merged[item.ProductID]); err != nil {
				return fmt.Errorf("product %s: %w", item.ProductID, err)
			}

			price, err := currentPrice(ctx, tx, item.ProductID)
			if err != nil {
				return err
			}
			if item.Price != nil && !item.Price.Equal(price) {
				return fmt.Errorf("%w: price of product %s changed to %s", domain.ErrConflict, item.ProductID, price.StringFixed(2))
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO cart_items (id, cart_id, product_id, quantity, price)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (cart_id, product_id)
				DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
			`, uuid.New().String(), c.ID, item.ProductID, item.Quantity, price)
			if err != nil {
				return fmt.Errorf("upsert cart item: %w", err)
			}
		}
		return nil
	})
}

func (r *CartRepository) UpdateItem(ctx context.Context, userID, itemID string, m domain.ItemMutation) (domain.Cart, error) {
	return r.mutate(ctx, userID, "update", func(tx *sql.Tx, c domain.Cart) error {
		line, ok := findItem(c, itemID)
		if !ok {
			return fmt.Errorf("cart item %s: %w", itemID, domain.ErrNotFound)
		}

		quantity, err := m.Apply(line.Quantity)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE cart_items SET quantity = $1
			WHERE id = $2 AND cart_id = $3
		`, quantity, itemID, c.ID)
		return err
	})
}

func (r *CartRepository) DeleteItem(ctx context.Context, userID, itemID string) (domain.Cart, error) {
	return r.mutate(ctx, userID, "delete", func(tx *sql.Tx, c domain.Cart) error {
		if _, ok := findItem(c, itemID); !ok {
			return fmt.Errorf("cart item %s: %w", itemID, domain.ErrNotFound)
		}

		_, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, c.ID)
		return err
	})
}

func (r *CartRepository) Clear(ctx context.Context, userID string) (domain.Cart, error) {
	return r.mutate(ctx, userID, "clear", func(tx *sql.Tx, c domain.Cart) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, c.ID)
		return err
	})
}

// Recompute rescans the cart lines and rewrites the aggregate. It must run on the
// transaction that holds the cart lock, after every line change.
func Recompute(ctx context.Context, tx *sql.Tx, c domain.Cart) (domain.Cart, error) {
	items, err := loadItems(ctx, tx, c.ID)
	if err != nil {
		return domain.Cart{}, err
	}

	c.Items = items
	c.Quantity, c.TotalAmount = domain.Totals(items)
	if err := domain.CheckTotal(c.TotalAmount); err != nil {
		return domain.Cart{}, err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE carts SET quantity = $1, total_amount = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at
	`, c.Quantity, c.TotalAmount, c.ID).Scan(&c.UpdatedAt)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("update cart totals: %w", err)
	}

	return c, nil
}

func currentPrice(ctx context.Context, tx *sql.Tx, productID string) (decimal.Decimal, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return decimal.Decimal{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}

	var price decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		SELECT price FROM products
		WHERE id = $1 AND NOT is_archive
	`, productID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	return price, err
}

func findItem(c domain.Cart, itemID string) (domain.CartItem, bool) {
	for _, item := range c.Items {
		if item.ID == itemID {
			return item, true
		}
	}
	return domain.CartItem{}, false
}

func loadItems(ctx context.Context, q querier, cartID string) ([]domain.CartItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.price,
		       p.name, p.price, p.stock, p.image, p.category_id, c.name, p.is_archive, p.created_at, p.updated_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		JOIN categories c ON c.id = p.category_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at, ci.id
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		p := &domain.Product{}
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.Price,
			&p.Name, &p.Price, &p.Stock, &p.Image, &p.CategoryID, &p.Category, &p.Archived, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.ID = item.ProductID
		item.Product = p
		items = append(items, item)
	}

	return items, rows.Err()
}
