// Package auth provides JWT issue/verify and password hashing for the admin
// surface.
//
// FLOW:
//  1. An admin posts credentials to /api/auth/login
//  2. The server verifies them (bcrypt) and issues a JWT in an HttpOnly cookie
//  3. On admin API calls, middleware reads the cookie, validates the JWT,
//     and sets the reviewer identity in the request context
//
// WHY JWT?
// Stateless — the server stores no session data. Everything needed (subject,
// expiry) is inside the signed token, and the HMAC signature means nobody
// can tamper with it without the secret key.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService handles JWT creation and validation. It holds the HMAC secret
// used to sign and verify tokens — the same secret for both operations.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims embeds jwt.RegisteredClaims; the "sub" (Subject) claim carries the
// admin username.
type claims struct {
	jwt.RegisteredClaims
}

// defaultTokenLifetime covers a working session. Reviewers churn through the
// queue in long sittings; a 15-minute token would log them out mid-review.
const defaultTokenLifetime = 12 * time.Hour

// Generate creates and signs a JWT for the given subject with the default
// lifetime.
//
// Signing algorithm: HS256 (HMAC-SHA256) — symmetric, fast, right for a
// single-server deployment where the issuer and verifier share the secret.
func (s *TokenService) Generate(subject string) (string, error) {
	return s.GenerateWithDuration(subject, defaultTokenLifetime)
}

// GenerateWithDuration creates a token with a custom expiry. Used by tests
// to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(subject string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    "contribtrack",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string, returning the subject claim.
//
// The jwt library checks the signature, expiry and issuer. Pinning the
// accepted algorithms to HS256 (jwt.WithValidMethods) closes the classic
// algorithm-confusion hole where an attacker submits a token signed with
// "none".
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer("contribtrack"),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	subject := c.Subject
	if subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return subject, nil
}
