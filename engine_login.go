package identity

import "context"

// Login authenticates identifier (email or username) with password and
// issues a fresh session pair.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*AuthenticationResult, error) {
	if identifier == "" || password == "" {
		e.metricInc(MetricLoginFailure)
		return nil, ErrValidation
	}

	user, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, "", identifier, err)
		return nil, err
	}
	if user == nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, "", identifier, ErrUserNotFound)
		return nil, ErrUserNotFound
	}

	ok, err := e.store.VerifyPassword(ctx, user.ID, password)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, user.ID, identifier, err)
		return nil, err
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, user.ID, identifier, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	confirmed, err := e.store.IsConfirmed(ctx, user.ID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, user.ID, identifier, err)
		return nil, err
	}
	if !confirmed {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, user.ID, identifier, ErrNotConfirmed)
		return nil, ErrNotConfirmed
	}

	result, err := e.issuer.IssueSession(ctx, user, e.now(), noPriorExpiry)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, user.ID, identifier, err)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLogin, user.ID, identifier, nil)
	return result, nil
}
