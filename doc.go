// Package identity provides the credential and token lifecycle core for a
// gaming platform: HS256 access token issuance and validation, single-use
// rotating refresh tokens, OTP-gated email confirmation and password reset,
// and a short-lived cache staging reset grants.
//
// The package is a library, not a service. It owns token and code lifecycles
// and delegates everything else to narrow contracts the embedding application
// implements: [CredentialStore] for user records and password verification,
// [EmailSender] and [OTPSender] for delivery, and [cache.Cache] for volatile
// state. HTTP routing, DTO projection, and relational persistence never
// appear here.
//
// # Construction
//
// An [Engine] is built once through [Builder.Build] and is safe for
// concurrent use afterwards:
//
//	eng, err := identity.New().
//		WithConfig(cfg).
//		WithRedis(redisClient).
//		WithCredentialStore(store).
//		WithEmailSender(mailer).
//		WithOTPSender(sms).
//		Build()
//
// # Boundaries
//
//   - Engine methods return sentinel errors; map them to transport concerns
//     (HTTP status, response bodies) outside this package. [UserMessage]
//     yields the user-facing English/Persian strings for any failure.
//   - Redis clients, store encodings, and claim assembly are implementation
//     details and stay unexported or behind subpackage interfaces.
//   - All expiry decisions flow from the engine clock, injectable through
//     [Builder.WithClock].
package identity
