// Package refresh persists opaque refresh tokens and enforces their
// single-use rotation lifecycle.
package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/novaplay/identity/internal"
)

// Token is one refresh token record. Value is both the opaque wire form and
// the storage key; JTI binds the record to the access token it was issued
// alongside.
type Token struct {
	Value       string
	JTI         string
	UserID      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Used        bool
	Invalidated bool
}

// Store persists Token records. ConsumeIfUnused must be atomic: under
// concurrent calls for the same value exactly one caller receives the
// record, the rest ErrAlreadyUsed.
type Store interface {
	Create(ctx context.Context, tok *Token) error
	Find(ctx context.Context, value string) (*Token, error)
	ConsumeIfUnused(ctx context.Context, value string) (*Token, error)
	Invalidate(ctx context.Context, value string) error
	InvalidateAllForUser(ctx context.Context, userID string) error
}

// Rotation failure kinds, compared with errors.Is.
var (
	ErrNotFound    = errors.New("refresh token not found")
	ErrAlreadyUsed = errors.New("refresh token already used")
	ErrExpired     = errors.New("refresh token expired")
	ErrInvalidated = errors.New("refresh token invalidated")
	ErrJTIMismatch = errors.New("refresh token bound to a different access token")
	ErrUnavailable = errors.New("refresh store unavailable")
)

// Ledger runs the rotation state machine over a Store.
type Ledger struct {
	store Store
}

// NewLedger returns a Ledger backed by store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Issue mints a fresh opaque token bound to jti and persists it.
func (l *Ledger) Issue(ctx context.Context, userID, jti string, now, expiresAt time.Time) (*Token, error) {
	value, err := internal.NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	tok := &Token{
		Value:     value,
		JTI:       jti,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	if err := l.store.Create(ctx, tok); err != nil {
		return nil, err
	}

	return tok, nil
}

// Rotate validates value against the presented access token id and consumes
// it. Checks run in a fixed order: missing, used, expired, invalidated,
// binding mismatch. Losing the final consume to a concurrent caller
// surfaces as ErrAlreadyUsed.
func (l *Ledger) Rotate(ctx context.Context, value, presentedJTI string, now time.Time) (*Token, error) {
	rec, err := l.store.Find(ctx, value)
	if err != nil {
		return nil, err
	}

	switch {
	case rec.Used:
		return nil, ErrAlreadyUsed
	case now.After(rec.ExpiresAt):
		return nil, ErrExpired
	case rec.Invalidated:
		return nil, ErrInvalidated
	case rec.JTI != presentedJTI:
		return nil, ErrJTIMismatch
	}

	return l.store.ConsumeIfUnused(ctx, value)
}

// Invalidate marks one record terminally invalid.
func (l *Ledger) Invalidate(ctx context.Context, value string) error {
	return l.store.Invalidate(ctx, value)
}

// InvalidateAllForUser marks every record belonging to the user terminally
// invalid.
func (l *Ledger) InvalidateAllForUser(ctx context.Context, userID string) error {
	return l.store.InvalidateAllForUser(ctx, userID)
}
