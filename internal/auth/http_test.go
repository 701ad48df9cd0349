// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation, user lookup and the role gate

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/assistant-console/internal/store"
)

func TestHTTPAuthMiddleware(t *testing.T) {
	verifier := newTestVerifier(t)
	alex := &store.AdminUser{ID: "u1", Username: "alex", Role: store.RoleEditor}
	users := newFakeUserStore(alex)

	valid, err := verifier.Generate(alex, time.Hour)
	require.NoError(t, err)
	unknown, err := verifier.Generate(&store.AdminUser{ID: "ghost", Username: "ghost", Role: store.RoleViewer}, time.Hour)
	require.NoError(t, err)
	promoted, err := verifier.Generate(&store.AdminUser{ID: "u1", Username: "alex", Role: store.RoleOwner}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "empty token"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"unknown user", "Bearer " + unknown, http.StatusUnauthorized, "user not found"},
		{"stale role", "Bearer " + promoted, http.StatusUnauthorized, "role changed, sign in again"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *AuthContext
			handler := HTTPAuthMiddleware(users, verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/templates", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, got)
				assert.Equal(t, "alex", got.Username)
				assert.Equal(t, store.RoleEditor, got.Role)
				return
			}
			assert.JSONEq(t, `{"error":"`+tt.wantBody+`"}`, rec.Body.String())
		})
	}
}

func TestRequireRoleHTTP(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	gate := RequireRoleHTTP(store.RoleAdmin)(ok)

	tests := []struct {
		name string
		auth *AuthContext
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"editor", &AuthContext{UserID: "u1", Role: store.RoleEditor}, http.StatusForbidden},
		{"admin", &AuthContext{UserID: "u2", Role: store.RoleAdmin}, http.StatusNoContent},
		{"owner", &AuthContext{UserID: "u3", Role: store.RoleOwner}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/users", nil)
			if tt.auth != nil {
				req = req.WithContext(WithAuth(req.Context(), tt.auth))
			}
			rec := httptest.NewRecorder()
			gate.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
