package identity

import (
	"context"

	"github.com/novaplay/identity/token"
)

// User is the projection of an account the engine works with. The engine
// never persists users; CredentialStore owns them.
type User struct {
	ID          string
	Username    string
	Email       string
	DisplayName string
	PhoneNumber string
}

// CredentialStore is the contract to the relational account store. The
// engine consumes it; the embedding application implements it.
//
// The FindBy methods return (nil, nil) when no account matches; a non-nil
// error always means backend failure. Token generation and acceptance
// (confirmation and reset tokens) are owned by the store, the engine only
// transports the values.
type CredentialStore interface {
	FindByName(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, userID string) (*User, error)

	VerifyPassword(ctx context.Context, userID, password string) (bool, error)
	IsConfirmed(ctx context.Context, userID string) (bool, error)

	ConfirmEmail(ctx context.Context, userID, confirmationToken string) error
	GenerateConfirmationToken(ctx context.Context, userID string) (string, error)
	GenerateResetToken(ctx context.Context, userID string) (string, error)
	ResetPassword(ctx context.Context, userID, resetToken, newPassword string) error

	Claims(ctx context.Context, userID string) ([]token.Claim, error)
	Roles(ctx context.Context, userID string) ([]string, error)
	RoleClaims(ctx context.Context, role string) ([]token.Claim, error)
}

// EmailSender delivers a confirmation or reset token to an email address.
type EmailSender interface {
	Send(ctx context.Context, email, artifact string) error
}

// OTPSender delivers a numeric one-time code out of band, typically SMS.
type OTPSender interface {
	Send(ctx context.Context, phoneNumber, identifier, code string) error
}

// AuthenticationResult is a successfully issued session pair.
type AuthenticationResult struct {
	AccessToken  string
	RefreshToken string
	Username     string
}
