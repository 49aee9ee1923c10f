package identity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/novaplay/identity/refresh"
	"github.com/novaplay/identity/token"
)

// SessionIssuer assembles the claim set for an account and issues a bound
// access/refresh token pair.
type SessionIssuer struct {
	signer          *token.Signer
	ledger          *refresh.Ledger
	store           CredentialStore
	refreshLifetime time.Duration
}

// NewSessionIssuer wires an issuer over its collaborators.
func NewSessionIssuer(signer *token.Signer, ledger *refresh.Ledger, store CredentialStore, refreshLifetime time.Duration) *SessionIssuer {
	return &SessionIssuer{
		signer:          signer,
		ledger:          ledger,
		store:           store,
		refreshLifetime: refreshLifetime,
	}
}

// IssueSession signs a fresh access token for user and persists a refresh
// token bound to its jti. A zero priorExpiry starts a new lifetime window;
// a non-zero one is carried over unchanged, which is how rotation keeps the
// original absolute deadline.
//
// Claim order: subject, token id, user id, display name, the account's own
// claims, then per role the role claim followed by that role's claims.
func (si *SessionIssuer) IssueSession(ctx context.Context, user *User, now time.Time, priorExpiry time.Time) (*AuthenticationResult, error) {
	jti := uuid.New().String()

	claims := []token.Claim{
		{Type: token.ClaimSubject, Value: user.Username},
		{Type: token.ClaimTokenID, Value: jti},
		{Type: token.ClaimUserID, Value: user.ID},
		{Type: token.ClaimName, Value: user.DisplayName},
	}

	userClaims, err := si.store.Claims(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	claims = append(claims, userClaims...)

	roles, err := si.store.Roles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		claims = append(claims, token.Claim{Type: token.ClaimRole, Value: role})
		roleClaims, err := si.store.RoleClaims(ctx, role)
		if err != nil {
			return nil, err
		}
		claims = append(claims, roleClaims...)
	}

	access, err := si.signer.Issue(claims, now)
	if err != nil {
		return nil, err
	}

	expiry := priorExpiry
	if expiry.IsZero() {
		expiry = now.Add(si.refreshLifetime)
	}

	rt, err := si.ledger.Issue(ctx, user.ID, jti, now, expiry)
	if err != nil {
		return nil, err
	}

	return &AuthenticationResult{
		AccessToken:  access,
		RefreshToken: rt.Value,
		Username:     user.Username,
	}, nil
}
