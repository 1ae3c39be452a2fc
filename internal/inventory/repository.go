package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joao-fontenele/storefront/internal/domain"
)

var (
	meter             = otel.Meter("storefront/inventory")
	stockMovements, _ = meter.Int64Counter("storefront.stock.movements",
		metric.WithDescription("Stock reservations and releases by outcome"))
)

type InventoryRepository struct {
	db *sql.DB
}

func NewInventoryRepository(db *sql.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) ListAll(ctx context.Context) ([]domain.StockLevel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, stock
		FROM products
		WHERE NOT is_archive
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.StockLevel{}
	for rows.Next() {
		var stock domain.StockLevel
		if err := rows.Scan(&stock.ProductID, &stock.Name, &stock.Stock); err != nil {
			return nil, err
		}
		items = append(items, stock)
	}

	return items, rows.Err()
}

func (r *InventoryRepository) GetStock(ctx context.Context, productID string) (domain.StockLevel, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return domain.StockLevel{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}

	var stock domain.StockLevel
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, stock
		FROM products
		WHERE id = $1
	`, productID).Scan(&stock.ProductID, &stock.Name, &stock.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockLevel{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	return stock, err
}

// Reserve takes quantity units out of stock. It fails with ErrConflict rather than
// driving stock negative.
func (r *InventoryRepository) Reserve(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	if quantity < 1 {
		return domain.StockLevel{}, fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
	}
	if _, err := uuid.Parse(productID); err != nil {
		return domain.StockLevel{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}

	var stock domain.StockLevel
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING id, name, stock
	`, productID, quantity).Scan(&stock.ProductID, &stock.Name, &stock.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetStock(ctx, productID); getErr != nil {
			record(ctx, "reserve", "not_found")
			return domain.StockLevel{}, getErr
		}
		record(ctx, "reserve", "insufficient")
		return domain.StockLevel{}, fmt.Errorf("%w: insufficient stock for product %s", domain.ErrConflict, productID)
	}
	if err != nil {
		return domain.StockLevel{}, err
	}

	record(ctx, "reserve", "ok")
	return stock, nil
}

// Release puts quantity units back, undoing an earlier Reserve.
func (r *InventoryRepository) Release(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	if quantity < 1 {
		return domain.StockLevel{}, fmt.Errorf("%w: quantity must be at least 1", domain.ErrValidation)
	}
	if _, err := uuid.Parse(productID); err != nil {
		return domain.StockLevel{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}

	var stock domain.StockLevel
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, stock
	`, productID, quantity).Scan(&stock.ProductID, &stock.Name, &stock.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockLevel{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.StockLevel{}, err
	}

	record(ctx, "release", "ok")
	return stock, nil
}

func record(ctx context.Context, operation, outcome string) {
	stockMovements.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}
