// ABOUTME: Password hashing and username/password login for admin users
// ABOUTME: Hashes with bcrypt and issues a JWT on successful login

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/assistant-console/internal/store"
)

// ErrInvalidCredentials is returned for an unknown username or wrong password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// MinPasswordLength is the shortest password accepted for new users.
const MinPasswordLength = 8

// UserStore looks up admin users.
type UserStore interface {
	GetAdminUser(ctx context.Context, id string) (*store.AdminUser, error)
	GetAdminUserByUsername(ctx context.Context, username string) (*store.AdminUser, error)
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticator exchanges credentials for API tokens.
type Authenticator struct {
	users    UserStore
	tokens   *JWTVerifier
	tokenTTL time.Duration
}

// NewAuthenticator creates an Authenticator issuing tokens valid for ttl.
func NewAuthenticator(users UserStore, tokens *JWTVerifier, ttl time.Duration) *Authenticator {
	return &Authenticator{users: users, tokens: tokens, tokenTTL: ttl}
}

// Login checks the credentials and returns a signed token with its expiry.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, time.Time, *store.AdminUser, error) {
	user, err := a.users.GetAdminUserByUsername(ctx, username)
	if errors.Is(err, store.ErrAdminUserNotFound) {
		return "", time.Time{}, nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("looking up user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return "", time.Time{}, nil, ErrInvalidCredentials
	}

	expires := time.Now().Add(a.tokenTTL)
	token, err := a.tokens.Generate(user, a.tokenTTL)
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("signing token: %w", err)
	}
	return token, expires, user, nil
}
