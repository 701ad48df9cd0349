// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts JWT from Authorization header and adds the admin user to context

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/assistant-console/internal/store"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// sessionUser loads the admin user a token was issued to. Tokens minted
// before a role change are refused, so demotions apply immediately.
func sessionUser(ctx context.Context, users UserStore, claims *SessionClaims) (*AuthContext, string) {
	user, err := users.GetAdminUser(ctx, claims.UserID())
	if err != nil {
		return nil, "user not found"
	}
	if user.Role != claims.Role {
		return nil, "role changed, sign in again"
	}
	return &AuthContext{UserID: user.ID, Username: user.Username, Role: user.Role}, ""
}

func writeAuthError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates JWT tokens.
// It loads the admin user the token was issued to and adds an AuthContext to the request.
// The optional logger records authentication failures.
func HTTPAuthMiddleware(users UserStore, verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logHTTPAuthFailure(logger, r, errMsg)
				writeAuthError(w, errMsg, http.StatusUnauthorized)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logHTTPAuthFailure(logger, r, "invalid token", "error", err)
				writeAuthError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			authCtx, errMsg := sessionUser(r.Context(), users, claims)
			if errMsg != "" {
				logHTTPAuthFailure(logger, r, errMsg, "user_id", claims.UserID())
				writeAuthError(w, errMsg, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireRoleHTTP creates an HTTP middleware that requires at least the given role.
// Must be used after HTTPAuthMiddleware.
func RequireRoleHTTP(min store.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				writeAuthError(w, "not authenticated", http.StatusUnauthorized)
				return
			}

			if !authCtx.Can(min) {
				writeAuthError(w, string(min)+" role required", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func logHTTPAuthFailure(logger *slog.Logger, r *http.Request, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	base := []any{"reason", reason, "path", r.URL.Path, "remote_addr", r.RemoteAddr}
	logger.Warn("auth failure", append(base, attrs...)...)
}
