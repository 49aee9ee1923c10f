package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func loginAlice(t *testing.T, env *testEnv) *AuthenticationResult {
	t.Helper()
	result, err := env.engine.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return result
}

func TestRefreshRejectsLiveAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.addAlice(t)
	ctx := context.Background()

	session := loginAlice(t, env)

	if _, err := env.engine.Refresh(ctx, session.AccessToken, session.RefreshToken); !errors.Is(err, ErrTokenNotYetExpired) {
		t.Fatalf("refresh error = %v, want %v", err, ErrTokenNotYetExpired)
	}

	// The early attempt must not burn the refresh token.
	env.clock.Advance(16 * time.Minute)
	if _, err := env.engine.Refresh(ctx, session.AccessToken, session.RefreshToken); err != nil {
		t.Fatalf("refresh after expiry: %v", err)
	}
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	env := newTestEnv(t)
	env.addAlice(t)
	ctx := context.Background()

	session := loginAlice(t, env)
	env.clock.Advance(16 * time.Minute)

	rotated, err := env.engine.Refresh(ctx, session.AccessToken, session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}
	if rotated.AccessToken == session.AccessToken {
		t.Fatal("rotation returned the same access token")
	}

	parsed := env.parseAccess(t, rotated.AccessToken, false)
	old := env.parseAccess(t, session.AccessToken, true)
	if parsed.TokenID == old.TokenID {
		t.Fatal("rotated session kept the old jti")
	}

	if _, err := env.engine.Refresh(ctx, session.AccessToken, session.RefreshToken); !errors.Is(err, ErrRefreshUsed) {
		t.Fatalf("reuse error = %v, want %v", err, ErrRefreshUsed)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("reuse counter = %d, want 1", got)
	}
}

func TestRefreshRejectsForeignRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.addAlice(t)
	ctx := context.Background()

	a := loginAlice(t, env)
	b := loginAlice(t, env)
	env.clock.Advance(16 * time.Minute)

	if _, err := env.engine.Refresh(ctx, a.AccessToken, b.RefreshToken); !errors.Is(err, ErrJTIMismatch) {
		t.Fatalf("cross-session refresh error = %v, want %v", err, ErrJTIMismatch)
	}
}

func TestRefreshRejectsBadAccessTokens(t *testing.T) {
	env := newTestEnv(t)
	env.addAlice(t)
	ctx := context.Background()

	session := loginAlice(t, env)
	env.clock.Advance(16 * time.Minute)

	tampered := session.AccessToken[:len(session.AccessToken)-2] + "xx"
	for _, raw := range []string{"not-a-token", tampered} {
		if _, err := env.engine.Refresh(ctx, raw, session.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("refresh with bad access token error = %v, want %v", err, ErrTokenInvalid)
		}
	}

	if _, err := env.engine.Refresh(ctx, session.AccessToken, "no-such-refresh"); !errors.Is(err, ErrRefreshNotFound) {
		t.Fatalf("unknown refresh error = %v, want %v", err, ErrRefreshNotFound)
	}
}

func TestRefreshKeepsOriginalDeadline(t *testing.T) {
	env := newTestEnv(t)
	env.addAlice(t)
	ctx := context.Background()

	start := env.clock.Now()
	deadline := start.Add(env.config.Refresh.Lifetime)

	session := loginAlice(t, env)
	for i := 0; i < 3; i++ {
		env.clock.Advance(16 * time.Minute)
		rotated, err := env.engine.Refresh(ctx, session.AccessToken, session.RefreshToken)
		if err != nil {
			t.Fatalf("rotation %d: %v", i+1, err)
		}
		session = rotated
	}

	// Still inside the original window.
	env.clock.Advance(deadline.Sub(env.clock.Now()) - time.Hour)
	rotated, err := env.engine.Refresh(ctx, session.AccessToken, session.RefreshToken)
	if err != nil {
		t.Fatalf("rotation near deadline: %v", err)
	}
	session = rotated

	// Rotations never extended the deadline.
	env.clock.Advance(2 * time.Hour)
	if _, err := env.engine.Refresh(ctx, session.AccessToken, session.RefreshToken); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("refresh past deadline error = %v, want %v", err, ErrRefreshExpired)
	}
}

func TestRefreshSingleWinnerUnderRace(t *testing.T) {
	env := newTestEnv(t)
	env.addAlice(t)
	ctx := context.Background()

	session := loginAlice(t, env)
	env.clock.Advance(16 * time.Minute)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(ctx, session.AccessToken, session.RefreshToken)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrRefreshUsed) {
				t.Errorf("loser error = %v, want %v", err, ErrRefreshUsed)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}
}

func TestRefreshIssuanceFailureKeepsTokenConsumed(t *testing.T) {
	env := newTestEnv(t)
	env.addAlice(t)
	ctx := context.Background()

	session := loginAlice(t, env)
	env.clock.Advance(16 * time.Minute)

	env.store.setFailFindByID(true)
	if _, err := env.engine.Refresh(ctx, session.AccessToken, session.RefreshToken); !errors.Is(err, ErrIssuanceFailed) {
		t.Fatalf("refresh error = %v, want %v", err, ErrIssuanceFailed)
	}

	env.store.setFailFindByID(false)
	if _, err := env.engine.Refresh(ctx, session.AccessToken, session.RefreshToken); !errors.Is(err, ErrRefreshUsed) {
		t.Fatalf("retry error = %v, want %v", err, ErrRefreshUsed)
	}
}

func TestRevokeAllInvalidatesEverySession(t *testing.T) {
	env := newTestEnv(t)
	env.addAlice(t)
	ctx := context.Background()

	a := loginAlice(t, env)
	b := loginAlice(t, env)

	if err := env.engine.RevokeAll(ctx, "u-1"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}

	env.clock.Advance(16 * time.Minute)
	for _, session := range []*AuthenticationResult{a, b} {
		if _, err := env.engine.Refresh(ctx, session.AccessToken, session.RefreshToken); !errors.Is(err, ErrRefreshInvalidated) {
			t.Fatalf("refresh after revoke error = %v, want %v", err, ErrRefreshInvalidated)
		}
	}
}
