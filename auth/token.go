package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"pinger/domain"
	perrors "pinger/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "pinger"

// Claims defines the structure of the data stored inside the JWT.
// The token ID (jti) is the session ID tracked by the identity store.
type Claims struct {
	Username string `json:"username"`
	UniqueID string `json:"unique_id"`
	jwt.RegisteredClaims
}

func (c Claims) Identity() domain.Identity {
	return domain.Identity{Username: c.Username, UniqueID: c.UniqueID}
}

// Signer mints and verifies HS256 session tokens.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner builds a signer from the configured secret.
// An empty secret yields a random per-process key: tokens do not survive a restart,
// which matches sessions living in memory.
func NewSigner(secret string) (*Signer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	return &Signer{key: key, now: time.Now}, nil
}

// WithClock replaces the time source used to validate expiration.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign creates a signed JWT for a session.
func (s *Signer) Sign(sessionID string, identity domain.Identity, issuedAt, expiresAt time.Time) (string, error) {
	claims := &Claims{
		Username: identity.Username,
		UniqueID: identity.UniqueID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   identity.UniqueID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", perrors.ErrTokenGeneration, err)
	}
	return signed, nil
}

// Parse validates the signature and expiration of a token string.
func (s *Signer) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, perrors.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", perrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, perrors.ErrInvalidToken
	}
	return claims, nil
}
