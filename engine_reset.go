package identity

import (
	"context"
	"errors"

	"github.com/novaplay/identity/otp"
)

const resetGrantSuffix = ":forgot-password"

func resetGrantKey(identifier string) string {
	return identifier + resetGrantSuffix
}

// ForgotPassword starts a password reset: a store-generated reset token is
// dispatched to the account, by email or as a one-time code.
func (e *Engine) ForgotPassword(ctx context.Context, identifier string) error {
	if identifier == "" {
		e.metricInc(MetricResetFailure)
		return ErrValidation
	}

	user, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditForgotPassword, "", identifier, err)
		return err
	}
	if user == nil {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditForgotPassword, "", identifier, ErrUserNotFound)
		return ErrUserNotFound
	}

	confirmed, err := e.store.IsConfirmed(ctx, user.ID)
	if err != nil {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditForgotPassword, user.ID, identifier, err)
		return err
	}
	if !confirmed {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditForgotPassword, user.ID, identifier, ErrNotConfirmed)
		return ErrNotConfirmed
	}

	resetToken, err := e.store.GenerateResetToken(ctx, user.ID)
	if err != nil {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditForgotPassword, user.ID, identifier, err)
		return err
	}

	if err := e.dispatchArtifact(ctx, user, resetToken); err != nil {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditForgotPassword, user.ID, identifier, err)
		return err
	}

	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, AuditForgotPassword, user.ID, identifier, nil)
	return nil
}

// ConfirmForgotPasswordOTP exchanges a one-time code for the reset token it
// carries and stages the token as a short-lived grant, so the subsequent
// ResetPassword call does not need to present the code again.
func (e *Engine) ConfirmForgotPasswordOTP(ctx context.Context, code, identifier string) error {
	if code == "" || identifier == "" {
		e.metricInc(MetricResetFailure)
		return ErrValidation
	}

	resetToken, err := e.verifier.Verify(ctx, code, identifier, e.now())
	if err != nil {
		if errors.Is(err, otp.ErrInvalidOrExpired) {
			err = ErrOTPInvalid
		}
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditResetGrant, "", identifier, err)
		return err
	}

	if err := e.cache.Set(ctx, resetGrantKey(identifier), resetToken, e.config.ResetGrant.TTL); err != nil {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditResetGrant, "", identifier, err)
		return err
	}

	e.metricInc(MetricResetGrantIssued)
	e.emitAudit(ctx, AuditResetGrant, "", identifier, nil)
	return nil
}

// ResetPassword completes a reset: the staged grant releases the reset
// token, the store applies the new password, and the grant is deleted so it
// cannot be replayed.
func (e *Engine) ResetPassword(ctx context.Context, identifier, newPassword string) error {
	if identifier == "" || newPassword == "" {
		e.metricInc(MetricResetFailure)
		return ErrValidation
	}

	user, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditPasswordReset, "", identifier, err)
		return err
	}
	if user == nil {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditPasswordReset, "", identifier, ErrUserNotFound)
		return ErrUserNotFound
	}

	resetToken, ok, err := e.cache.TryGet(ctx, resetGrantKey(identifier))
	if err != nil {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditPasswordReset, user.ID, identifier, err)
		return err
	}
	if !ok {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditPasswordReset, user.ID, identifier, ErrResetGrantExpired)
		return ErrResetGrantExpired
	}

	if err := e.store.ResetPassword(ctx, user.ID, resetToken, newPassword); err != nil {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, AuditPasswordReset, user.ID, identifier, err)
		return err
	}

	_ = e.cache.Delete(ctx, resetGrantKey(identifier))

	e.metricInc(MetricResetSuccess)
	e.emitAudit(ctx, AuditPasswordReset, user.ID, identifier, nil)
	return nil
}
