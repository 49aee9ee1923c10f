package identity

import (
	"context"
	"net/mail"
	"time"

	"github.com/novaplay/identity/cache"
	"github.com/novaplay/identity/otp"
	"github.com/novaplay/identity/refresh"
	"github.com/novaplay/identity/token"
)

// Engine orchestrates the credential and token lifecycle flows. Build one
// through [Builder.Build]; all methods are then safe for concurrent use.
type Engine struct {
	config   Config
	store    CredentialStore
	cache    cache.Cache
	signer   *token.Signer
	issuer   *SessionIssuer
	ledger   *refresh.Ledger
	verifier *otp.Verifier
	otpStore otp.Store
	email    EmailSender
	sms      OTPSender
	audit    *auditDispatcher
	metrics  *Metrics
	now      func() time.Time
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used afterwards.
func (e *Engine) Close() {
	e.audit.Close()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under
// DropIfFull.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType, userID, identifier string, failure error) {
	event := AuditEvent{
		Timestamp:  e.now(),
		EventType:  eventType,
		UserID:     userID,
		Identifier: identifier,
		Success:    failure == nil,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	e.audit.Emit(ctx, event)
}

// findByIdentifier resolves an account by email when the identifier parses
// as one, by username otherwise. A username miss falls back to the email
// column, which also holds non-address contact handles. (nil, nil) means no
// match.
func (e *Engine) findByIdentifier(ctx context.Context, identifier string) (*User, error) {
	if isEmailAddress(identifier) {
		return e.store.FindByEmail(ctx, identifier)
	}
	user, err := e.store.FindByName(ctx, identifier)
	if err != nil || user != nil {
		return user, err
	}
	return e.store.FindByEmail(ctx, identifier)
}

func isEmailAddress(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
