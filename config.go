package identity

import (
	"errors"
	"time"
)

// Config is the engine configuration. Zero values are filled from
// defaultConfig by the builder; Validate runs once at Build time.
type Config struct {
	JWT        JWTConfig
	Refresh    RefreshConfig
	OTP        OTPConfig
	ResetGrant ResetGrantConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

// JWTConfig configures access token issuance. Site doubles as issuer and
// audience.
type JWTConfig struct {
	SigningKey []byte
	Site       string
	AccessTTL  time.Duration
}

// RefreshConfig configures the refresh token ledger.
type RefreshConfig struct {
	Lifetime    time.Duration
	RedisPrefix string
}

// OTPConfig configures one-time code generation.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	RedisPrefix string
}

// ResetGrantConfig configures the staged password reset grant.
type ResetGrantConfig struct {
	TTL         time.Duration
	CachePrefix string
}

// AuditConfig configures the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

const (
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshLifetime = 4380 * time.Hour // six months
	defaultOTPDigits       = 6
	defaultOTPTTL          = 10 * time.Minute
	defaultResetGrantTTL   = 5 * time.Minute
	defaultAuditBufferSize = 256

	minSigningKeyBytes = 32
)

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: defaultAccessTTL,
		},
		Refresh: RefreshConfig{
			Lifetime: defaultRefreshLifetime,
		},
		OTP: OTPConfig{
			Digits: defaultOTPDigits,
			TTL:    defaultOTPTTL,
		},
		ResetGrant: ResetGrantConfig{
			TTL: defaultResetGrantTTL,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: defaultAuditBufferSize,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first configuration rule the config breaks.
func (c Config) Validate() error {
	if len(c.JWT.SigningKey) < minSigningKeyBytes {
		return errors.New("config: jwt signing key must be at least 32 bytes")
	}
	if c.JWT.Site == "" {
		return errors.New("config: jwt site identifier must not be empty")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("config: jwt access ttl must be positive")
	}
	if c.Refresh.Lifetime <= 0 {
		return errors.New("config: refresh lifetime must be positive")
	}
	if c.Refresh.Lifetime <= c.JWT.AccessTTL {
		return errors.New("config: refresh lifetime must exceed the access ttl")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("config: otp digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("config: otp ttl must be positive")
	}
	if c.ResetGrant.TTL <= 0 {
		return errors.New("config: reset grant ttl must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("config: audit buffer size must be positive")
	}
	return nil
}

func cloneConfig(c Config) Config {
	out := c
	if c.JWT.SigningKey != nil {
		out.JWT.SigningKey = make([]byte, len(c.JWT.SigningKey))
		copy(out.JWT.SigningKey, c.JWT.SigningKey)
	}
	return out
}
