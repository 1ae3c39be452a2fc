package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/pgutil"
)

// CartCreator opens the cart row inside the sign-up transaction.
type CartCreator interface {
	Create(ctx context.Context, tx *sql.Tx, userID string) error
}

type UserRepository struct {
	db    *sql.DB
	carts CartCreator
}

func NewUserRepository(db *sql.DB, carts CartCreator) *UserRepository {
	return &UserRepository{db: db, carts: carts}
}

const userColumns = `id, first_name, last_name, username, email, phone_number, password_hash, role, is_archive, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.Email, &u.PhoneNumber,
		&u.PasswordHash, &u.Role, &u.Archived, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// Create inserts the user and its empty cart atomically.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	user.ID = uuid.New().String()
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	return pgutil.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, first_name, last_name, username, email, phone_number, password_hash, role, is_archive, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $9)
		`, user.ID, user.FirstName, user.LastName, user.Username, user.Email, user.PhoneNumber,
			user.PasswordHash, user.Role, now)
		if err != nil {
			return duplicateError(err)
		}

		if user.Role == domain.RoleCustomer {
			if err := r.carts.Create(ctx, tx, user.ID); err != nil {
				return fmt.Errorf("create cart: %w", err)
			}
		}
		return nil
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return user, err
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
	}
	return user, err
}

// List returns active users, newest first.
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE NOT is_archive
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	users := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// Update is a partial update. Nil fields keep their current value.
type Update struct {
	FirstName    *string
	LastName     *string
	Username     *string
	Email        *string
	PhoneNumber  *string
	PasswordHash *string
}

func (r *UserRepository) Update(ctx context.Context, id string, u Update) (domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE users SET
			first_name    = COALESCE($2, first_name),
			last_name     = COALESCE($3, last_name),
			username      = COALESCE($4, username),
			email         = COALESCE($5, email),
			phone_number  = COALESCE($6, phone_number),
			password_hash = COALESCE($7, password_hash),
			updated_at    = NOW()
		WHERE id = $1
		RETURNING `+userColumns,
		id, u.FirstName, u.LastName, u.Username, u.Email, u.PhoneNumber, u.PasswordHash)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.User{}, duplicateError(err)
	}
	return user, nil
}

func (r *UserRepository) Archive(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_archive = TRUE, updated_at = NOW()
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
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func duplicateError(err error) error {
	constraint, ok := pgutil.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case "users_username_key":
		return fmt.Errorf("%w: username already exists", domain.ErrConflict)
	case "users_email_key":
		return fmt.Errorf("%w: email already exists", domain.ErrConflict)
	case "users_phone_number_key":
		return fmt.Errorf("%w: phone number already exists", domain.ErrConflict)
	default:
		return fmt.Errorf("%w: user already exists", domain.ErrConflict)
	}
}
