package identity

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the engine.
const (
	AuditLogin           = "login"
	AuditRefresh         = "refresh"
	AuditConfirmation    = "confirmation"
	AuditConfirmationOTP = "confirmation_otp"
	AuditResend          = "resend_confirmation"
	AuditForgotPassword  = "forgot_password"
	AuditResetGrant      = "reset_grant"
	AuditPasswordReset   = "password_reset"
	AuditRevokeAll       = "revoke_all"
)

// AuditEvent is one engine decision, successful or not. Error carries the
// sentinel text on failure and is empty on success.
type AuditEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	UserID     string    `json:"user_id,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// AuditSink receives events from the dispatcher. Emit must not block
// indefinitely; slow sinks back-pressure or drop depending on AuditConfig.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit discards the event.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a channel, dropping when it is full.
type ChannelSink struct {
	ch chan AuditEvent
}

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan AuditEvent, buffer)}
}

// Events exposes the receiving side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.ch
}

// Emit forwards the event, dropping it when the channel is full.
func (s *ChannelSink) Emit(_ context.Context, event AuditEvent) {
	select {
	case s.ch <- event:
	default:
	}
}

// JSONWriterSink writes one JSON line per event.
type JSONWriterSink struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewJSONWriterSink returns a sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit writes the event as a single JSON line.
func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
