package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// Products seeded by migrations/000002_seed_catalog.
const (
	ToteID   = "0b8e5d8a-1c2f-4b6e-8d3a-5e7f9a1b2c01" // 10.00, stock 100
	JacketID = "0b8e5d8a-1c2f-4b6e-8d3a-5e7f9a1b2c02" // 25.00, stock 100
	BeanieID = "0b8e5d8a-1c2f-4b6e-8d3a-5e7f9a1b2c03" // 12.50, stock 3

	ApparelID     = "6f0c1a2e-4a51-4d6f-9b0e-2f6b7c3e9a01"
	AccessoriesID = "6f0c1a2e-4a51-4d6f-9b0e-2f6b7c3e9a02"
)

// SeedCustomer inserts a customer with an empty cart and returns the user id.
func SeedCustomer(ctx context.Context, t *testing.T, db *sql.DB) string {
	t.Helper()

	userID := uuid.New().String()
	suffix := userID[:8]

	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, username, email, phone_number, password_hash, role)
		VALUES ($1, 'Test', 'Customer', $2, $3, $4, 'x', 'Customer')
	`, userID, "user-"+suffix, suffix+"@example.com", "555-"+suffix)
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO carts (id, user_id) VALUES ($1, $2)
	`, uuid.New().String(), userID)
	if err != nil {
		t.Fatalf("failed to seed cart: %v", err)
	}

	return userID
}

// SeedProduct inserts an active product in the Apparel category.
func SeedProduct(ctx context.Context, t *testing.T, db *sql.DB, price string, stock int) string {
	t.Helper()

	id := uuid.New().String()
	_, err := db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, category_id)
		VALUES ($1, $2, $3, $4, $5)
	`, id, fmt.Sprintf("product-%s", id[:8]), price, stock, ApparelID)
	if err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return id
}
