package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/novaplay/identity/refresh"
)

// noPriorExpiry starts a new refresh lifetime window.
var noPriorExpiry time.Time

// Refresh rotates a session: the expired access token proves which jti the
// refresh token must be bound to, the refresh token is consumed exactly
// once, and the replacement pair keeps the original refresh deadline.
func (e *Engine) Refresh(ctx context.Context, accessToken, refreshToken string) (*AuthenticationResult, error) {
	if accessToken == "" || refreshToken == "" {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrValidation
	}

	now := e.now()

	parsed, err := e.signer.Parse(accessToken, true, now)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefresh, "", "", err)
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if parsed.ExpiresAt.After(now) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefresh, parsed.UserID, parsed.Subject, ErrTokenNotYetExpired)
		return nil, ErrTokenNotYetExpired
	}

	consumed, err := e.ledger.Rotate(ctx, refreshToken, parsed.TokenID, now)
	if err != nil {
		mapped := mapRotateError(err)
		if errors.Is(mapped, ErrRefreshUsed) {
			e.metricInc(MetricRefreshReuseDetected)
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefresh, parsed.UserID, parsed.Subject, mapped)
		return nil, mapped
	}

	user, err := e.store.FindByID(ctx, consumed.UserID)
	if err == nil && user == nil {
		err = ErrUserNotFound
	}
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefresh, consumed.UserID, parsed.Subject, err)
		return nil, fmt.Errorf("%w: %v", ErrIssuanceFailed, err)
	}

	result, err := e.issuer.IssueSession(ctx, user, now, consumed.ExpiresAt)
	if err != nil {
		// The old token stays consumed; the caller has to sign in again.
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, AuditRefresh, user.ID, user.Username, err)
		return nil, fmt.Errorf("%w: %v", ErrIssuanceFailed, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditRefresh, user.ID, user.Username, nil)
	return result, nil
}

// RevokeAll terminally invalidates every refresh token of the user.
func (e *Engine) RevokeAll(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrValidation
	}

	if err := e.ledger.InvalidateAllForUser(ctx, userID); err != nil {
		e.emitAudit(ctx, AuditRevokeAll, userID, "", err)
		return err
	}

	e.metricInc(MetricRevocation)
	e.emitAudit(ctx, AuditRevokeAll, userID, "", nil)
	return nil
}

func mapRotateError(err error) error {
	switch {
	case errors.Is(err, refresh.ErrNotFound):
		return ErrRefreshNotFound
	case errors.Is(err, refresh.ErrAlreadyUsed):
		return ErrRefreshUsed
	case errors.Is(err, refresh.ErrExpired):
		return ErrRefreshExpired
	case errors.Is(err, refresh.ErrInvalidated):
		return ErrRefreshInvalidated
	case errors.Is(err, refresh.ErrJTIMismatch):
		return ErrJTIMismatch
	default:
		return err
	}
}
