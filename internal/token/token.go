/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package token issues the bearer tokens that bind API writes to a player id.
package token

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuerName = "yardbox"

var (
	ErrMissing = errors.New("missing bearer token")
	ErrInvalid = errors.New("invalid token")
)

type Claims struct {
	PlayerID string `json:"pid"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an HS256 issuer. A ttl of zero issues tokens that never
// expire.
func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("token secret must be at least 16 bytes")
	}
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}, nil
}

func (i *Issuer) Issue(playerID string) (string, error) {
	if playerID == "" {
		return "", fmt.Errorf("player id is required")
	}

	now := i.now()
	claims := Claims{
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuerName,
			Subject:  playerID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks the signature and expiry of raw and returns the player id it
// was issued for.
func (i *Issuer) Verify(raw string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !parsed.Valid || claims.PlayerID == "" {
		return "", ErrInvalid
	}
	return claims.PlayerID, nil
}

// FromRequest verifies the bearer token in the Authorization header.
func (i *Issuer) FromRequest(r *http.Request) (string, error) {
	raw, ok := Bearer(r.Header.Get("Authorization"))
	if !ok {
		return "", ErrMissing
	}
	return i.Verify(raw)
}

func Bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	raw := strings.TrimSpace(header[len(prefix):])
	return raw, raw != ""
}
