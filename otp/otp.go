// Package otp stores single-use numeric codes that release an embedded
// token on successful verification.
package otp

import (
	"context"
	"errors"
	"time"
)

// Record is one pending code. The pair (Code, Identifier) is the lookup
// key; Token is the artifact released when the code verifies.
type Record struct {
	Code       string
	Identifier string
	Token      string
	ExpiresAt  time.Time
}

// Store persists Records. Consume must be atomic: under concurrent calls
// for the same record exactly one caller receives it, the rest
// ErrInvalidOrExpired.
type Store interface {
	Save(ctx context.Context, rec *Record, ttl time.Duration) error
	Consume(ctx context.Context, code, identifier string, now time.Time) (*Record, error)
}

var (
	// ErrInvalidOrExpired covers missing, already consumed, and expired
	// codes alike; callers cannot tell them apart.
	ErrInvalidOrExpired = errors.New("otp invalid or expired")
	ErrUnavailable      = errors.New("otp store unavailable")
)

// Verifier checks and consumes codes.
type Verifier struct {
	store Store
}

// NewVerifier returns a Verifier backed by store.
func NewVerifier(store Store) *Verifier {
	return &Verifier{store: store}
}

// Verify consumes the record matching (code, identifier) and returns its
// embedded token. Any failure to match an active record is
// ErrInvalidOrExpired.
func (v *Verifier) Verify(ctx context.Context, code, identifier string, now time.Time) (string, error) {
	rec, err := v.store.Consume(ctx, code, identifier, now)
	if err != nil {
		return "", err
	}
	return rec.Token, nil
}
