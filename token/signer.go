// Package token implements HS256 access token issuance and validation on a
// single shared symmetric key.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim is a single (type, value) pair carried in an access token payload.
// Supplying the same type more than once aggregates the values into a JSON
// array in the order the pairs were given.
type Claim struct {
	Type  string
	Value string
}

// Claim types populated by the session issuer.
const (
	ClaimSubject = "sub"
	ClaimTokenID = "jti"
	ClaimUserID  = "id"
	ClaimName    = "name"
	ClaimRole    = "role"
)

// Validation failure kinds. Callers distinguish them with errors.Is.
var (
	ErrBadSignature      = errors.New("access token signature invalid")
	ErrExpired           = errors.New("access token expired")
	ErrAlgorithmMismatch = errors.New("access token signing algorithm mismatch")
	ErrMalformed         = errors.New("access token malformed")
)

const minSigningKeyBytes = 32

// Config holds the signing parameters. Site is used as both issuer and
// audience.
type Config struct {
	SigningKey []byte
	Site       string
	AccessTTL  time.Duration
}

// Signer issues and validates HS256 access tokens. Safe for concurrent use.
type Signer struct {
	config Config
}

// Parsed is the verified content of an access token.
type Parsed struct {
	Claims    []Claim
	Subject   string
	TokenID   string
	UserID    string
	ExpiresAt time.Time
}

// NewSigner validates the config and returns a Signer. The signing key is
// copied, so the caller may reuse its slice.
func NewSigner(cfg Config) (*Signer, error) {
	if len(cfg.SigningKey) < minSigningKeyBytes {
		return nil, fmt.Errorf("token signing key must be at least %d bytes", minSigningKeyBytes)
	}
	if cfg.Site == "" {
		return nil, errors.New("token site identifier must not be empty")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("token access ttl must be positive")
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)
	cfg.SigningKey = key

	return &Signer{config: cfg}, nil
}

// Issue signs the given claims into a compact token. Issuer, audience,
// issued-at, and expiry come from the config and now; the pairs must not use
// those registered types.
func (s *Signer) Issue(claims []Claim, now time.Time) (string, error) {
	payload := jwt.MapClaims{
		"iss": s.config.Site,
		"aud": s.config.Site,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(s.config.AccessTTL)),
	}

	for _, c := range claims {
		switch existing := payload[c.Type].(type) {
		case nil:
			payload[c.Type] = c.Value
		case string:
			payload[c.Type] = []string{existing, c.Value}
		case []string:
			payload[c.Type] = append(existing, c.Value)
		default:
			return "", fmt.Errorf("claim type %q collides with a registered claim", c.Type)
		}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(s.config.SigningKey)
}

// Parse verifies the signature, algorithm, issuer, and audience of raw and
// returns its content. With ignoreExpiry the expiry claim must be present
// but is not compared against now; refresh uses this to read expired tokens.
func (s *Signer) Parse(raw string, ignoreExpiry bool, now time.Time) (*Parsed, error) {
	options := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if ignoreExpiry {
		options = append(options, jwt.WithoutClaimsValidation())
	} else {
		options = append(options,
			jwt.WithIssuer(s.config.Site),
			jwt.WithAudience(s.config.Site),
			jwt.WithExpirationRequired(),
		)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrAlgorithmMismatch
		}
		return s.config.SigningKey, nil
	}, options...)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlgorithmMismatch):
			return nil, ErrAlgorithmMismatch
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrMalformed
		}
	}

	parsed, err := fromMapClaims(claims)
	if err != nil {
		return nil, err
	}

	if ignoreExpiry {
		// The relaxed parse skips claim validation; issuer, audience, and
		// expiry presence still have to hold.
		if iss, err := claims.GetIssuer(); err != nil || iss != s.config.Site {
			return nil, ErrMalformed
		}
		aud, err := claims.GetAudience()
		if err != nil || !containsAudience(aud, s.config.Site) {
			return nil, ErrMalformed
		}
		if parsed.ExpiresAt.IsZero() {
			return nil, ErrMalformed
		}
	}

	return parsed, nil
}

func fromMapClaims(claims jwt.MapClaims) (*Parsed, error) {
	parsed := &Parsed{}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		parsed.ExpiresAt = exp.Time
	}

	for typ, raw := range claims {
		switch typ {
		case "iss", "aud", "exp", "iat", "nbf":
			continue
		}
		values, ok := claimValues(raw)
		if !ok {
			return nil, ErrMalformed
		}
		for _, v := range values {
			parsed.Claims = append(parsed.Claims, Claim{Type: typ, Value: v})
		}
	}

	for _, c := range parsed.Claims {
		switch c.Type {
		case ClaimSubject:
			if parsed.Subject == "" {
				parsed.Subject = c.Value
			}
		case ClaimTokenID:
			if parsed.TokenID == "" {
				parsed.TokenID = c.Value
			}
		case ClaimUserID:
			if parsed.UserID == "" {
				parsed.UserID = c.Value
			}
		}
	}

	return parsed, nil
}

func claimValues(raw interface{}) ([]string, bool) {
	switch v := raw.(type) {
	case string:
		return []string{v}, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func containsAudience(aud jwt.ClaimStrings, site string) bool {
	for _, a := range aud {
		if a == site {
			return true
		}
	}
	return false
}
