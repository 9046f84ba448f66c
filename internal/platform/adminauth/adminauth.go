// Package adminauth issues and verifies the HS256 bearer tokens that guard
// the dashboard's write endpoints.
package adminauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var ErrInvalidToken = errors.New("invalid admin token")

type Tokens struct {
	secret []byte
	clock  clockwork.Clock
}

func New(secret string, clock clockwork.Clock) *Tokens {
	return &Tokens{secret: []byte(secret), clock: clock}
}

// Issue signs a token for subject that expires after ttl.
func (t *Tokens) Issue(subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	now := t.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry and returns the subject.
func (t *Tokens) Verify(raw string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.clock.Now),
	)

	var claims jwt.RegisteredClaims
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
