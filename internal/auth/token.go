// ABOUTME: Session tokens for the console API, signed HS256 with the configured secret
// ABOUTME: Claims carry the admin user ID, username and the role held at login

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/2389/assistant-console/internal/store"
)

// MinSecretLength is the minimum accepted HS256 secret size in bytes.
const MinSecretLength = 32

// tokenIssuer is stamped into every session and required on the way back in.
const tokenIssuer = "assistant-console"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = errors.New("jwt secret too short")
)

// SessionClaims is the payload of a console session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Username string     `json:"usr"`
	Role     store.Role `json:"role"`
}

// UserID returns the subject, the admin user's ID.
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// TokenVerifier checks a session token and returns its claims.
type TokenVerifier interface {
	Verify(tokenString string) (*SessionClaims, error)
}

// JWTVerifier issues and verifies session tokens.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier returns ErrWeakSecret if the secret is shorter than
// MinSecretLength.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrWeakSecret, MinSecretLength, len(secret))
	}
	return &JWTVerifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
	}, nil
}

// Verify validates the signature, issuer and expiry, and requires the
// subject and role claims.
func (v *JWTVerifier) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("%w: role", ErrMissingClaim)
	}
	return claims, nil
}

// Generate signs a session for user that expires after expiresIn.
func (v *JWTVerifier) Generate(user *store.AdminUser, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
		Username: user.Username,
		Role:     user.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
