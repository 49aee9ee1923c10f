package identity

import (
	"context"
	"errors"

	"github.com/novaplay/identity/internal"
	"github.com/novaplay/identity/otp"
)

// dispatchArtifact delivers a store-generated token to the user. A
// well-formed email address goes out through EmailSender; anything else is
// staged as a one-time numeric code releasing the token and sent through
// OTPSender.
func (e *Engine) dispatchArtifact(ctx context.Context, user *User, artifact string) error {
	if isEmailAddress(user.Email) {
		if e.email == nil {
			return errors.Join(ErrEngineNotReady, errors.New("no email sender configured"))
		}
		return e.email.Send(ctx, user.Email, artifact)
	}

	if e.sms == nil {
		return errors.Join(ErrEngineNotReady, errors.New("no otp sender configured"))
	}

	code, err := internal.NewNumericCode(e.config.OTP.Digits)
	if err != nil {
		return err
	}

	rec := &otp.Record{
		Code:       code,
		Identifier: user.Email,
		Token:      artifact,
		ExpiresAt:  e.now().Add(e.config.OTP.TTL),
	}
	if err := e.otpStore.Save(ctx, rec, e.config.OTP.TTL); err != nil {
		return err
	}

	return e.sms.Send(ctx, user.PhoneNumber, user.Email, code)
}
