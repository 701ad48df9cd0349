// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating the signed-in admin user via context

package auth

import (
	"context"

	"github.com/2389/assistant-console/internal/store"
)

// AuthContext holds the authenticated admin user extracted from a request.
type AuthContext struct {
	UserID   string
	Username string
	Role     store.Role
}

// Can reports whether the user's role grants at least min.
func (a *AuthContext) Can(min store.Role) bool {
	return a != nil && a.Role.AtLeast(min)
}

// IsAdmin returns true if the user has admin or owner role.
func (a *AuthContext) IsAdmin() bool {
	return a.Can(store.RoleAdmin)
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// ActorID returns the signed-in user's ID, or "system" outside a request.
func ActorID(ctx context.Context) string {
	if a := FromContext(ctx); a != nil {
		return a.UserID
	}
	return "system"
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
