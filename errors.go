package identity

import "errors"

// Public failure kinds. Engine methods return exactly one of these per
// failure (possibly wrapped); callers compare with errors.Is.
var (
	// ErrValidation reports empty or structurally invalid input.
	ErrValidation = errors.New("invalid request")

	// ErrUserNotFound reports that no account matches the identifier.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials reports a failed password check.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotConfirmed reports that the account has not completed email
	// confirmation.
	ErrNotConfirmed = errors.New("account not confirmed")

	// ErrTokenInvalid reports an access token that failed signature,
	// algorithm, or structural validation.
	ErrTokenInvalid = errors.New("access token invalid")

	// ErrTokenNotYetExpired reports a refresh attempt with a still-live
	// access token.
	ErrTokenNotYetExpired = errors.New("access token has not expired yet")

	// Refresh rotation failures, in their check order.
	ErrRefreshNotFound    = errors.New("refresh token does not exist")
	ErrRefreshUsed        = errors.New("refresh token already used")
	ErrRefreshExpired     = errors.New("refresh token expired")
	ErrRefreshInvalidated = errors.New("refresh token invalidated")
	ErrJTIMismatch        = errors.New("refresh token does not match this access token")

	// ErrIssuanceFailed reports that the old refresh token was consumed
	// but the replacement session could not be issued.
	ErrIssuanceFailed = errors.New("session issuance failed")

	// ErrOTPInvalid covers missing, consumed, and expired one-time codes
	// alike.
	ErrOTPInvalid = errors.New("one-time code invalid or expired")

	// ErrResetGrantExpired reports a password reset without a live grant.
	ErrResetGrantExpired = errors.New("password reset grant missing or expired")

	// ErrEngineNotReady reports a flow that needs a collaborator the
	// builder was never given.
	ErrEngineNotReady = errors.New("engine missing a required collaborator")
)
