package identity

import (
	"context"
	"errors"

	"github.com/novaplay/identity/otp"
)

// ConfirmEmail accepts a confirmation token directly, the path taken by
// email links.
func (e *Engine) ConfirmEmail(ctx context.Context, userID, confirmationToken string) error {
	if userID == "" || confirmationToken == "" {
		e.metricInc(MetricConfirmationFailure)
		return ErrValidation
	}

	user, err := e.store.FindByID(ctx, userID)
	if err != nil {
		e.metricInc(MetricConfirmationFailure)
		e.emitAudit(ctx, AuditConfirmation, userID, "", err)
		return err
	}
	if user == nil {
		e.metricInc(MetricConfirmationFailure)
		e.emitAudit(ctx, AuditConfirmation, userID, "", ErrUserNotFound)
		return ErrUserNotFound
	}

	if err := e.store.ConfirmEmail(ctx, user.ID, confirmationToken); err != nil {
		e.metricInc(MetricConfirmationFailure)
		e.emitAudit(ctx, AuditConfirmation, user.ID, user.Email, err)
		return err
	}

	e.metricInc(MetricConfirmationSuccess)
	e.emitAudit(ctx, AuditConfirmation, user.ID, user.Email, nil)
	return nil
}

// ConfirmEmailOTP exchanges a one-time code for the confirmation token it
// carries and confirms the account, the path taken when the token went out
// through OTPSender.
func (e *Engine) ConfirmEmailOTP(ctx context.Context, code, identifier string) error {
	if code == "" || identifier == "" {
		e.metricInc(MetricConfirmationFailure)
		return ErrValidation
	}

	user, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		e.metricInc(MetricConfirmationFailure)
		e.emitAudit(ctx, AuditConfirmationOTP, "", identifier, err)
		return err
	}
	if user == nil {
		e.metricInc(MetricConfirmationFailure)
		e.emitAudit(ctx, AuditConfirmationOTP, "", identifier, ErrUserNotFound)
		return ErrUserNotFound
	}

	confirmationToken, err := e.verifier.Verify(ctx, code, identifier, e.now())
	if err != nil {
		if errors.Is(err, otp.ErrInvalidOrExpired) {
			err = ErrOTPInvalid
		}
		e.metricInc(MetricConfirmationFailure)
		e.emitAudit(ctx, AuditConfirmationOTP, user.ID, identifier, err)
		return err
	}

	if err := e.store.ConfirmEmail(ctx, user.ID, confirmationToken); err != nil {
		e.metricInc(MetricConfirmationFailure)
		e.emitAudit(ctx, AuditConfirmationOTP, user.ID, identifier, err)
		return err
	}

	e.metricInc(MetricConfirmationSuccess)
	e.emitAudit(ctx, AuditConfirmationOTP, user.ID, identifier, nil)
	return nil
}

// ResendConfirmation regenerates a confirmation token for an unconfirmed
// account and dispatches it again.
func (e *Engine) ResendConfirmation(ctx context.Context, identifier string) error {
	if identifier == "" {
		return ErrValidation
	}

	user, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		e.emitAudit(ctx, AuditResend, "", identifier, err)
		return err
	}
	if user == nil {
		e.emitAudit(ctx, AuditResend, "", identifier, ErrUserNotFound)
		return ErrUserNotFound
	}

	confirmationToken, err := e.store.GenerateConfirmationToken(ctx, user.ID)
	if err != nil {
		e.emitAudit(ctx, AuditResend, user.ID, identifier, err)
		return err
	}

	if err := e.dispatchArtifact(ctx, user, confirmationToken); err != nil {
		e.emitAudit(ctx, AuditResend, user.ID, identifier, err)
		return err
	}

	e.metricInc(MetricResendRequest)
	e.emitAudit(ctx, AuditResend, user.ID, identifier, nil)
	return nil
}
