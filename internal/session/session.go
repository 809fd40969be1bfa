// Package session is the single source of truth for the visitor's
// authentication state. A persisted record older than the configured
// maximum age is purged before any authenticated read.
package session

import (
	"context"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"salonfront/pkg/domain"
)

// DefaultMaxAge matches the storefront's seven-day sign-in window.
const DefaultMaxAge = 7 * 24 * time.Hour

// Record is what a store persists per visitor: the backend credential and
// the profile, written and removed together.
type Record struct {
	Token   string         `json:"token"`
	Profile domain.Session `json:"user"`
}

// Store persists visitor sessions keyed by the storefront visitor id.
// Load never fails on corrupt or expired data; both are treated as absent
// and purged. Only real storage failures surface as errors.
type Store interface {
	Load(ctx context.Context, visitorID string) (Record, bool, error)
	Save(ctx context.Context, visitorID string, rec Record) error
	Clear(ctx context.Context, visitorID string) error
}

// expired applies the max-age rule. When the profile carries no IssuedAt
// the credential's iat claim is the fallback; with neither present the
// record is considered stale.
func expired(rec Record, maxAge time.Duration, now time.Time) bool {
	issued := rec.Profile.IssuedAt
	if issued.IsZero() {
		issued = TokenIssuedAt(rec.Token)
	}
	if issued.IsZero() {
		return true
	}
	return now.Sub(issued) > maxAge
}

// TokenIssuedAt reads the iat claim from a JWT credential without verifying
// the signature; verification is the backend's job. Returns the zero time
// when the token is not a parseable JWT or carries no iat.
func TokenIssuedAt(token string) time.Time {
	claims := claimsOf(token)
	if claims == nil {
		return time.Time{}
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return time.Time{}
	}
	return iat.Time
}

// TokenExpired reports whether the credential's own exp claim has passed.
// Tokens without a parseable exp are not considered expired here; the
// backend remains authoritative.
func TokenExpired(token string, now time.Time) bool {
	claims := claimsOf(token)
	if claims == nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.Before(now)
}

func claimsOf(token string) jwt.MapClaims {
	if token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}
