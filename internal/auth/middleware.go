package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/httpx"
)

// APIKeyHeader carries the shared key on service to service calls.
const APIKeyHeader = "X-Internal-Api-Key"

type UserLookup interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
}

type Middleware struct {
	tokens *Tokens
	users  UserLookup
	logger *slog.Logger
}

func NewMiddleware(tokens *Tokens, users UserLookup, logger *slog.Logger) *Middleware {
	return &Middleware{tokens: tokens, users: users, logger: logger}
}

func (m *Middleware) RequireCustomer(next http.HandlerFunc) http.HandlerFunc {
	return m.require(next, domain.RoleCustomer)
}

func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.require(next, domain.RoleAdmin)
}

// RequireAnyRole accepts either session. The admin cookie is checked first.
func (m *Middleware) RequireAnyRole(next http.HandlerFunc) http.HandlerFunc {
	return m.require(next, domain.RoleAdmin, domain.RoleCustomer)
}

func (m *Middleware) require(next http.HandlerFunc, roles ...domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var lastErr error = fmt.Errorf("%w: no session token", domain.ErrUnauthenticated)

		for _, role := range roles {
			raw := tokenFromRequest(r, CookieName(role))
			if raw == "" {
				continue
			}

			user, err := m.authenticate(r.Context(), raw, role)
			if err != nil {
				lastErr = err
				continue
			}

			next(w, r.WithContext(WithUser(r.Context(), user)))
			return
		}

		httpx.Fail(w, m.logger, lastErr, "failed to authenticate request", "path", r.URL.Path)
	}
}

func (m *Middleware) authenticate(ctx context.Context, raw string, role domain.Role) (domain.User, error) {
	claims, err := m.tokens.Parse(raw)
	if err != nil {
		return domain.User{}, err
	}

	user, err := m.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: unknown user", domain.ErrUnauthenticated)
		}
		return domain.User{}, err
	}

	if user.Archived {
		return domain.User{}, fmt.Errorf("%w: account archived", domain.ErrUnauthenticated)
	}
	if user.Role != role {
		return domain.User{}, fmt.Errorf("%w: not a %s", domain.ErrForbidden, strings.ToLower(string(role)))
	}

	return user, nil
}

// tokenFromRequest prefers the role cookie and falls back to a bearer token.
func tokenFromRequest(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// RequireAPIKey guards internal routes. An empty key disables them entirely.
func RequireAPIKey(key string, logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(APIKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			httpx.WriteError(w, logger, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r)
	}
}
