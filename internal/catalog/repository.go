package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/pgutil"
)

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) CreateCategory(ctx context.Context, c *domain.Category) error {
	c.ID = uuid.New().String()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
	`, c.ID, c.Name, now)
	if _, dup := pgutil.UniqueViolation(err); dup {
		return fmt.Errorf("%w: category already exists", domain.ErrConflict)
	}
	return err
}

func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

func (r *CatalogRepository) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Category{}, fmt.Errorf("category %s: %w", id, domain.ErrNotFound)
	}

	var c domain.Category
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Category{}, fmt.Errorf("category %s: %w", id, domain.ErrNotFound)
	}
	return c, err
}

func (r *CatalogRepository) UpdateCategory(ctx context.Context, id, name string) (domain.Category, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Category{}, fmt.Errorf("category %s: %w", id, domain.ErrNotFound)
	}

	var c domain.Category
	err := r.db.QueryRowContext(ctx, `
		UPDATE categories SET name = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING id, name, created_at, updated_at
	`, name, id).Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Category{}, fmt.Errorf("category %s: %w", id, domain.ErrNotFound)
	}
	if _, dup := pgutil.UniqueViolation(err); dup {
		return domain.Category{}, fmt.Errorf("%w: category already exists", domain.ErrConflict)
	}
	return c, err
}

const productColumns = `p.id, p.name, p.price, p.stock, p.image, p.category_id, c.name, p.is_archive, p.created_at, p.updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Image, &p.CategoryID, &p.Category, &p.Archived, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *CatalogRepository) CreateProduct(ctx context.Context, p *domain.Product) error {
	p.ID = uuid.New().String()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, image, category_id, is_archive, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $7)
	`, p.ID, p.Name, p.Price, p.Stock, p.Image, p.CategoryID, now)
	return productWriteError(err)
}

// ListProducts returns the active catalog. Archived products are only reachable by id.
func (r *CatalogRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return r.listProducts(ctx, `WHERE NOT p.is_archive`)
}

// ListAllProducts includes archived products, for exports.
func (r *CatalogRepository) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	return r.listProducts(ctx, ``)
}

func (r *CatalogRepository) listProducts(ctx context.Context, where string) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		JOIN categories c ON c.id = p.category_id
		`+where+`
		ORDER BY p.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

func (r *CatalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}

	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return p, err
}

// ProductUpdate is a partial update. Nil fields keep their current value. Price changes
// never touch lines already in carts.
type ProductUpdate struct {
	Name       *string
	Price      *decimal.Decimal
	Stock      *int
	CategoryID *string
	Image      *string
}

func (r *CatalogRepository) UpdateProduct(ctx context.Context, id string, u ProductUpdate) (domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}

	var price *string
	if u.Price != nil {
		s := u.Price.String()
		price = &s
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE products SET
			name        = COALESCE($2, name),
			price       = COALESCE($3::NUMERIC, price),
			stock       = COALESCE($4::INTEGER, stock),
			category_id = COALESCE($5::UUID, category_id),
			image       = COALESCE($6, image),
			updated_at  = NOW()
		WHERE id = $1
	`, id, u.Name, price, u.Stock, u.CategoryID, u.Image)
	if err != nil {
		return domain.Product{}, productWriteError(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return domain.Product{}, err
	}
	if n == 0 {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}

	return r.GetProduct(ctx, id)
}

func (r *CatalogRepository) ArchiveProduct(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE products SET is_archive = TRUE, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func productWriteError(err error) error {
	if err == nil {
		return nil
	}
	if _, dup := pgutil.UniqueViolation(err); dup {
		return fmt.Errorf("%w: product already exists in this category", domain.ErrConflict)
	}
	if pgutil.ForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown category", domain.ErrValidation)
	}
	return err
}
