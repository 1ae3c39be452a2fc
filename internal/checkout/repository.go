package checkout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s domain.CheckoutSession) error {
	items, err := json.Marshal(s.Items)
	if err != nil {
		return fmt.Errorf("marshal session items: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO checkout_sessions (id, user_id, cart_id, items, total_amount, currency, status, url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.UserID, s.CartID, items, s.TotalAmount, s.Currency, s.Status, s.URL, s.CreatedAt)
	return err
}

func (r *SessionRepository) Get(ctx context.Context, id string) (domain.CheckoutSession, error) {
	var (
		s       domain.CheckoutSession
		items   []byte
		orderID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, cart_id, items, total_amount, currency, status, url, order_id, created_at
		FROM checkout_sessions
		WHERE id = $1
	`, id).Scan(&s.ID, &s.UserID, &s.CartID, &items, &s.TotalAmount, &s.Currency, &s.Status, &s.URL, &orderID, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CheckoutSession{}, fmt.Errorf("checkout session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CheckoutSession{}, err
	}

	if err := json.Unmarshal(items, &s.Items); err != nil {
		return domain.CheckoutSession{}, fmt.Errorf("unmarshal session items: %w", err)
	}
	s.OrderID = orderID.String
	return s, nil
}

func (r *SessionRepository) Complete(ctx context.Context, id, orderID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE checkout_sessions SET status = $1, order_id = $2
		WHERE id = $3
	`, domain.CheckoutStatusCompleted, orderID, id)
	return err
}
