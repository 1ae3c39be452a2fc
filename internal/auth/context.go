package auth

import (
	"context"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type userKey struct{}

func WithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// FromContext returns the authenticated user placed there by the middleware.
func FromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userKey{}).(domain.User)
	return user, ok
}

// CanAccessUser reports whether user may act on resources owned by ownerID.
func CanAccessUser(user domain.User, ownerID string) bool {
	return user.Role == domain.RoleAdmin || user.ID == ownerID
}
