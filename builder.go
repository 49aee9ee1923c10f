package identity

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/novaplay/identity/cache"
	"github.com/novaplay/identity/otp"
	"github.com/novaplay/identity/refresh"
	"github.com/novaplay/identity/token"
)

// Builder assembles an Engine. Construction is allocation-only; nothing
// touches Redis until the first flow runs.
type Builder struct {
	config       Config
	configSet    bool
	redis        *redis.Client
	store        CredentialStore
	email        EmailSender
	sms          OTPSender
	sink         AuditSink
	clock        func() time.Time
	cache        cache.Cache
	refreshStore refresh.Store
	otpStore     otp.Store
}

// New starts a Builder with defaults.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the default config. Zero TTLs and counts are filled
// back in from the defaults before validation.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	b.configSet = true
	return b
}

// WithRedis sets the client backing the default stores and cache.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the account store. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

// WithEmailSender sets the email delivery contract.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.email = sender
	return b
}

// WithOTPSender sets the out-of-band code delivery contract.
func (b *Builder) WithOTPSender(sender OTPSender) *Builder {
	b.sms = sender
	return b
}

// WithAuditSink sets the audit sink. Defaults to NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithClock replaces the engine clock. Defaults to time.Now.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithCache overrides the default Redis-backed cache.
func (b *Builder) WithCache(c cache.Cache) *Builder {
	b.cache = c
	return b
}

// WithRefreshStore overrides the default Redis-backed refresh store.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refreshStore = store
	return b
}

// WithOTPStore overrides the default Redis-backed OTP store.
func (b *Builder) WithOTPStore(store otp.Store) *Builder {
	b.otpStore = store
	return b
}

// Build validates the configuration, constructs the default stores for any
// not overridden, and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.store == nil {
		return nil, errors.New("build: credential store is required")
	}

	cfg := b.config
	if b.configSet {
		cfg = fillDefaults(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	needsRedis := b.cache == nil || b.refreshStore == nil || b.otpStore == nil
	if needsRedis && b.redis == nil {
		return nil, errors.New("build: redis client is required unless every store is overridden")
	}

	signer, err := token.NewSigner(token.Config{
		SigningKey: cfg.JWT.SigningKey,
		Site:       cfg.JWT.Site,
		AccessTTL:  cfg.JWT.AccessTTL,
	})
	if err != nil {
		return nil, err
	}

	refreshStore := b.refreshStore
	if refreshStore == nil {
		refreshStore = refresh.NewRedisStore(b.redis, cfg.Refresh.RedisPrefix)
	}
	ledger := refresh.NewLedger(refreshStore)

	otpStore := b.otpStore
	if otpStore == nil {
		otpStore = otp.NewRedisStore(b.redis, cfg.OTP.RedisPrefix)
	}

	grantCache := b.cache
	if grantCache == nil {
		grantCache = cache.NewRedis(b.redis, cfg.ResetGrant.CachePrefix)
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		config:   cfg,
		store:    b.store,
		cache:    grantCache,
		signer:   signer,
		issuer:   NewSessionIssuer(signer, ledger, b.store, cfg.Refresh.Lifetime),
		ledger:   ledger,
		verifier: otp.NewVerifier(otpStore),
		otpStore: otpStore,
		email:    b.email,
		sms:      b.sms,
		audit:    newAuditDispatcher(cfg.Audit, b.sink),
		metrics:  NewMetrics(cfg.Metrics),
		now:      clock,
	}, nil
}

func fillDefaults(cfg Config) Config {
	def := defaultConfig()

	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = def.JWT.AccessTTL
	}
	if cfg.Refresh.Lifetime == 0 {
		cfg.Refresh.Lifetime = def.Refresh.Lifetime
	}
	if cfg.OTP.Digits == 0 {
		cfg.OTP.Digits = def.OTP.Digits
	}
	if cfg.OTP.TTL == 0 {
		cfg.OTP.TTL = def.OTP.TTL
	}
	if cfg.ResetGrant.TTL == 0 {
		cfg.ResetGrant.TTL = def.ResetGrant.TTL
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}

	return cfg
}
