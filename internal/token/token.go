// Package token issues and verifies the signed tokens used by the note tool:
// access and refresh sessions, pending two-factor logins and share link unlock grants.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shaonote/starbot/internal/models"
)

// Kind distinguishes token purposes. A token is only accepted for its own kind.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
	MFA     Kind = "mfa"
	Unlock  Kind = "unlock"
)

// Claims is the JWT payload.
type Claims struct {
	Type Kind `json:"typ"`
	jwt.RegisteredClaims
}

// TTLs holds the lifetime of each token kind.
type TTLs struct {
	Access  time.Duration
	Refresh time.Duration
	MFA     time.Duration
	Unlock  time.Duration
}

// Manager signs tokens with HS256.
type Manager struct {
	secret []byte
	ttl    map[Kind]time.Duration
	now    func() time.Time
}

// NewManager creates a Manager. Zero TTLs fall back to 15m, 7d, 5m and 30m.
func NewManager(secret string, ttls TTLs) *Manager {
	def := func(v, d time.Duration) time.Duration {
		if v <= 0 {
			return d
		}
		return v
	}
	return &Manager{
		secret: []byte(secret),
		ttl: map[Kind]time.Duration{
			Access:  def(ttls.Access, 15*time.Minute),
			Refresh: def(ttls.Refresh, 7*24*time.Hour),
			MFA:     def(ttls.MFA, 5*time.Minute),
			Unlock:  def(ttls.Unlock, 30*time.Minute),
		},
		now: time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// TTL returns the lifetime of kind.
func (m *Manager) TTL(kind Kind) time.Duration {
	return m.ttl[kind]
}

// Issue signs a token of kind for subject and returns it with its expiry.
func (m *Manager) Issue(kind Kind, subject string) (string, time.Time, error) {
	ttl, ok := m.ttl[kind]
	if !ok {
		return "", time.Time{}, fmt.Errorf("unknown token kind %q", kind)
	}
	now := m.now()
	exp := now.Add(ttl)
	claims := Claims{
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

// Verify parses raw and checks signature, algorithm, expiry and kind. It
// returns the subject. Every failure is reported as models.ErrUnauthorized.
func (m *Manager) Verify(kind Kind, raw string) (string, error) {
	if raw == "" {
		return "", models.ErrUnauthorized
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrUnauthorized, err)
	}
	if claims.Type != kind {
		return "", fmt.Errorf("%w: token type %q, want %q", models.ErrUnauthorized, claims.Type, kind)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", models.ErrUnauthorized)
	}
	return claims.Subject, nil
}
