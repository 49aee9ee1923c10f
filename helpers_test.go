package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/novaplay/identity/password"
	"github.com/novaplay/identity/token"
)

// Light argon2id costs keep the fixtures fast; production callers use
// password.Hash.
var testHashParams = password.Params{
	Memory:      8 * 1024,
	Time:        1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   16,
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeUser struct {
	user         User
	passwordHash string
	confirmed    bool
	confirmToken string
	resetToken   string
	claims       []token.Claim
	roles        []string
}

type fakeCredentialStore struct {
	mu           sync.Mutex
	users        map[string]*storeUser
	roleClaims   map[string][]token.Claim
	tokenSeq     int
	failFindByID bool
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{
		users:      make(map[string]*storeUser),
		roleClaims: make(map[string][]token.Claim),
	}
}

func (s *fakeCredentialStore) addUser(t *testing.T, u User, pw string, confirmed bool) *storeUser {
	t.Helper()

	hash, err := password.HashWithParams(pw, testHashParams)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	su := &storeUser{user: u, passwordHash: hash, confirmed: confirmed}
	s.mu.Lock()
	s.users[u.ID] = su
	s.mu.Unlock()
	return su
}

func (s *fakeCredentialStore) find(match func(*storeUser) bool) *storeUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, su := range s.users {
		if match(su) {
			return su
		}
	}
	return nil
}

func (s *fakeCredentialStore) FindByName(_ context.Context, username string) (*User, error) {
	su := s.find(func(su *storeUser) bool { return su.user.Username == username })
	if su == nil {
		return nil, nil
	}
	u := su.user
	return &u, nil
}

func (s *fakeCredentialStore) FindByEmail(_ context.Context, email string) (*User, error) {
	su := s.find(func(su *storeUser) bool { return su.user.Email == email })
	if su == nil {
		return nil, nil
	}
	u := su.user
	return &u, nil
}

func (s *fakeCredentialStore) FindByID(_ context.Context, userID string) (*User, error) {
	s.mu.Lock()
	fail := s.failFindByID
	s.mu.Unlock()
	if fail {
		return nil, errors.New("credential store offline")
	}

	su := s.find(func(su *storeUser) bool { return su.user.ID == userID })
	if su == nil {
		return nil, nil
	}
	u := su.user
	return &u, nil
}

func (s *fakeCredentialStore) setFailFindByID(v bool) {
	s.mu.Lock()
	s.failFindByID = v
	s.mu.Unlock()
}

func (s *fakeCredentialStore) VerifyPassword(_ context.Context, userID, pw string) (bool, error) {
	s.mu.Lock()
	su, ok := s.users[userID]
	s.mu.Unlock()
	if !ok {
		return false, errors.New("unknown user")
	}
	return password.Verify(pw, su.passwordHash)
}

func (s *fakeCredentialStore) IsConfirmed(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	su, ok := s.users[userID]
	if !ok {
		return false, errors.New("unknown user")
	}
	return su.confirmed, nil
}

func (s *fakeCredentialStore) ConfirmEmail(_ context.Context, userID, confirmationToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	su, ok := s.users[userID]
	if !ok {
		return errors.New("unknown user")
	}
	if su.confirmToken == "" || su.confirmToken != confirmationToken {
		return errors.New("invalid confirmation token")
	}
	su.confirmed = true
	su.confirmToken = ""
	return nil
}

func (s *fakeCredentialStore) GenerateConfirmationToken(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	su, ok := s.users[userID]
	if !ok {
		return "", errors.New("unknown user")
	}
	s.tokenSeq++
	su.confirmToken = fmt.Sprintf("confirm-%d", s.tokenSeq)
	return su.confirmToken, nil
}

func (s *fakeCredentialStore) GenerateResetToken(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	su, ok := s.users[userID]
	if !ok {
		return "", errors.New("unknown user")
	}
	s.tokenSeq++
	su.resetToken = fmt.Sprintf("reset-%d", s.tokenSeq)
	return su.resetToken, nil
}

func (s *fakeCredentialStore) ResetPassword(_ context.Context, userID, resetToken, newPassword string) error {
	hash, err := password.HashWithParams(newPassword, testHashParams)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	su, ok := s.users[userID]
	if !ok {
		return errors.New("unknown user")
	}
	if su.resetToken == "" || su.resetToken != resetToken {
		return errors.New("invalid reset token")
	}
	su.passwordHash = hash
	su.resetToken = ""
	return nil
}

func (s *fakeCredentialStore) Claims(_ context.Context, userID string) ([]token.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	su, ok := s.users[userID]
	if !ok {
		return nil, errors.New("unknown user")
	}
	return append([]token.Claim(nil), su.claims...), nil
}

func (s *fakeCredentialStore) Roles(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	su, ok := s.users[userID]
	if !ok {
		return nil, errors.New("unknown user")
	}
	return append([]string(nil), su.roles...), nil
}

func (s *fakeCredentialStore) RoleClaims(_ context.Context, role string) ([]token.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]token.Claim(nil), s.roleClaims[role]...), nil
}

type sentEmail struct {
	Email    string
	Artifact string
}

type emailRecorder struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (r *emailRecorder) Send(_ context.Context, email, artifact string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEmail{Email: email, Artifact: artifact})
	return nil
}

func (r *emailRecorder) last(t *testing.T) sentEmail {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		t.Fatal("no email was sent")
	}
	return r.sent[len(r.sent)-1]
}

type sentCode struct {
	Phone      string
	Identifier string
	Code       string
}

type otpRecorder struct {
	mu   sync.Mutex
	sent []sentCode
}

func (r *otpRecorder) Send(_ context.Context, phone, identifier, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentCode{Phone: phone, Identifier: identifier, Code: code})
	return nil
}

func (r *otpRecorder) last(t *testing.T) sentCode {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		t.Fatal("no code was sent")
	}
	return r.sent[len(r.sent)-1]
}

const testSite = "play.novacafe.example"

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

type testEnv struct {
	engine *Engine
	store  *fakeCredentialStore
	emails *emailRecorder
	codes  *otpRecorder
	clock  *fakeClock
	redis  *miniredis.Miniredis
	config Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := defaultConfig()
	cfg.JWT.SigningKey = testSigningKey
	cfg.JWT.Site = testSite
	cfg.Audit.Enabled = false

	env := &testEnv{
		store:  newFakeCredentialStore(),
		emails: &emailRecorder{},
		codes:  &otpRecorder{},
		clock:  newFakeClock(),
		redis:  mr,
		config: cfg,
	}

	eng, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(env.store).
		WithEmailSender(env.emails).
		WithOTPSender(env.codes).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(eng.Close)

	env.engine = eng
	return env
}

// addAlice seeds the canonical confirmed account used across flow tests.
func (env *testEnv) addAlice(t *testing.T) *storeUser {
	t.Helper()
	su := env.store.addUser(t, User{
		ID:          "u-1",
		Username:    "alice",
		Email:       "alice@example.com",
		DisplayName: "Alice Doe",
		PhoneNumber: "+15550100",
	}, "correct horse battery", true)
	su.claims = []token.Claim{{Type: "tier", Value: "gold"}}
	su.roles = []string{"player"}
	env.store.roleClaims["player"] = []token.Claim{{Type: "scope", Value: "play"}}
	return su
}

func (env *testEnv) parseAccess(t *testing.T, raw string, ignoreExpiry bool) *token.Parsed {
	t.Helper()

	signer, err := token.NewSigner(token.Config{
		SigningKey: testSigningKey,
		Site:       testSite,
		AccessTTL:  env.config.JWT.AccessTTL,
	})
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}

	parsed, err := signer.Parse(raw, ignoreExpiry, env.clock.Now())
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	return parsed
}
