package authkit

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rentfold/authkit/jwt"
)

func testKeyPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

// memoryStore is an in-memory RefreshTokenStore with the same CAS contract
// as the Redis implementation.
type memoryStore struct {
	mu      sync.Mutex
	ids     map[string]string
	failing bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{ids: make(map[string]string)}
}

func (s *memoryStore) CurrentID(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return "", fmt.Errorf("%w: store down", ErrStoreUnavailable)
	}
	id, ok := s.ids[userID]
	if !ok {
		return "", ErrNoRefreshRecord
	}
	return id, nil
}

func (s *memoryStore) Put(_ context.Context, userID, id string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return fmt.Errorf("%w: store down", ErrStoreUnavailable)
	}
	s.ids[userID] = id
	return nil
}

func (s *memoryStore) Rotate(_ context.Context, userID, previousID, nextID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return fmt.Errorf("%w: store down", ErrStoreUnavailable)
	}
	current, ok := s.ids[userID]
	if !ok {
		return ErrNoRefreshRecord
	}
	if current != previousID {
		return ErrRefreshReuse
	}
	s.ids[userID] = nextID
	return nil
}

func (s *memoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return fmt.Errorf("%w: store down", ErrStoreUnavailable)
	}
	delete(s.ids, userID)
	return nil
}

type stubSnapshots struct {
	projects  map[string]string
	tenancies map[string]string
	err       error
}

func (s *stubSnapshots) ProjectRoles(context.Context, string) (map[string]string, error) {
	return s.projects, s.err
}

func (s *stubSnapshots) TenancyRoles(context.Context, string) (map[string]string, error) {
	return s.tenancies, s.err
}

type stubDirectory struct {
	users map[string]UserRecord
}

func (d *stubDirectory) Resolve(_ context.Context, userID string) (UserRecord, error) {
	u, ok := d.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func newTestManager(t *testing.T, mutate func(*Config)) (*SessionManager, *memoryStore) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.JWT.PrivateKeyPEM = testKeyPEM(t)
	if mutate != nil {
		mutate(&cfg)
	}

	st := newMemoryStore()
	mgr, err := New().
		WithConfig(cfg).
		WithStore(st).
		WithSnapshotProvider(&stubSnapshots{
			projects:  map[string]string{"p1": "MANAGER"},
			tenancies: map[string]string{"t1": "TENANT"},
		}).
		WithUserDirectory(&stubDirectory{users: map[string]UserRecord{
			"u1": {UserID: "u1", Email: "alice@example.com", Active: true},
		}}).
		Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	t.Cleanup(mgr.Close)

	return mgr, st
}

func TestIssueAccessCookieRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t, nil)

	cookie, err := mgr.IssueAccessCookie(context.Background(), "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue access cookie: %v", err)
	}

	if cookie.Name != "remsfal_access_token" {
		t.Fatalf("unexpected cookie name %q", cookie.Name)
	}
	if cookie.Path != "/api" {
		t.Fatalf("access cookie must span the API root, got %q", cookie.Path)
	}
	if cookie.HttpOnly {
		t.Fatal("access cookie is deliberately readable by client code")
	}
	if !cookie.Secure || cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("unexpected cookie hardening: secure=%v samesite=%v", cookie.Secure, cookie.SameSite)
	}

	principal, err := mgr.ValidateAccessCookie(cookie)
	if err != nil {
		t.Fatalf("validate access cookie: %v", err)
	}
	if principal.UserID != "u1" || principal.Email != "alice@example.com" {
		t.Fatalf("unexpected principal %+v", principal)
	}
	if principal.Snapshot.Projects["p1"] != "MANAGER" || principal.Snapshot.Tenancies["t1"] != "TENANT" {
		t.Fatalf("snapshot not carried: %+v", principal.Snapshot)
	}
}

func TestIssueRefreshCookieAttributes(t *testing.T) {
	mgr, st := newTestManager(t, nil)

	cookie, err := mgr.IssueRefreshCookie(context.Background(), "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue refresh cookie: %v", err)
	}

	if cookie.Name != "remsfal_refresh_token" {
		t.Fatalf("unexpected cookie name %q", cookie.Name)
	}
	if cookie.Path != "/api/v1/authentication" {
		t.Fatalf("refresh cookie must be path-restricted, got %q", cookie.Path)
	}
	if !cookie.HttpOnly {
		t.Fatal("refresh cookie must be http-only")
	}

	id, err := st.CurrentID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("store lookup: %v", err)
	}
	if id == "" {
		t.Fatal("store must hold the issued identifier")
	}
}

func TestLoginRevokesPreviousRefreshToken(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	first, err := mgr.IssueRefreshCookie(ctx, "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if _, err := mgr.IssueRefreshCookie(ctx, "u1", "alice@example.com"); err != nil {
		t.Fatalf("second login: %v", err)
	}

	// The first token is still signed and unexpired, yet revoked.
	if _, _, err := mgr.RenewTokens(ctx, first); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected first refresh token to be revoked, got %v", err)
	}
}

func TestRenewTokensRotatesAndDetectsReplay(t *testing.T) {
	mgr, _ := newTestManager(t, func(cfg *Config) {
		cfg.Metrics.Enabled = true
	})
	ctx := context.Background()

	refreshA, err := mgr.IssueRefreshCookie(ctx, "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	accessB, refreshB, err := mgr.RenewTokens(ctx, refreshA)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if accessB == nil || refreshB == nil {
		t.Fatal("renewal must produce a full pair")
	}
	if refreshB.Value == refreshA.Value {
		t.Fatal("rotation must mint a new refresh token")
	}
	if _, err := mgr.ValidateAccessCookie(accessB); err != nil {
		t.Fatalf("renewed access cookie must validate: %v", err)
	}

	// Replay of the superseded token: Unauthorized, classified as reuse.
	_, _, err = mgr.RenewTokens(ctx, refreshA)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on replay, got %v", err)
	}
	if !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("replay must classify as reuse internally, got %v", err)
	}
	snap := mgr.MetricsSnapshot()
	if snap.Counters[MetricRefreshReuseDetected] != 1 {
		t.Fatalf("reuse counter = %d, want 1", snap.Counters[MetricRefreshReuseDetected])
	}
	if snap.Counters[MetricRenewFailure] != 1 {
		t.Fatalf("renew-failure counter = %d, want 1", snap.Counters[MetricRenewFailure])
	}

	// The legitimate chain keeps working.
	if _, _, err := mgr.RenewTokens(ctx, refreshB); err != nil {
		t.Fatalf("legitimate chain broken after replay attempt: %v", err)
	}
}

func TestRenewTokensRejectsMissingAndGarbageCookies(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	if _, _, err := mgr.RenewTokens(ctx, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for missing cookie, got %v", err)
	}

	garbage := &http.Cookie{Name: mgr.RefreshCookieName(), Value: "not.a.token"}
	if _, _, err := mgr.RenewTokens(ctx, garbage); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for garbage cookie, got %v", err)
	}
}

// flakySnapshots fails its first n ProjectRoles calls, then recovers.
type flakySnapshots struct {
	failures int
}

func (s *flakySnapshots) ProjectRoles(context.Context, string) (map[string]string, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("roles db down")
	}
	return map[string]string{"p1": "MANAGER"}, nil
}

func (s *flakySnapshots) TenancyRoles(context.Context, string) (map[string]string, error) {
	return nil, nil
}

func TestRenewTokensTransientSnapshotFailureIsRetryable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKeyPEM = testKeyPEM(t)

	mgr, err := New().
		WithConfig(cfg).
		WithStore(newMemoryStore()).
		WithSnapshotProvider(&flakySnapshots{failures: 1}).
		Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	defer mgr.Close()

	ctx := context.Background()
	refresh, err := mgr.IssueRefreshCookie(ctx, "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	// The snapshot provider hiccups on the first renewal attempt. The store
	// identifier must not have rotated: the failure is a server error, not
	// the end of the session.
	_, _, err = mgr.RenewTokens(ctx, refresh)
	if !errors.Is(err, ErrSnapshotUnavailable) {
		t.Fatalf("expected ErrSnapshotUnavailable, got %v", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatal("a snapshot outage must never read as unauthorized")
	}

	// After the outage clears, the very same refresh cookie renews fine.
	access, next, err := mgr.RenewTokens(ctx, refresh)
	if err != nil {
		t.Fatalf("retry after outage must succeed: %v", err)
	}
	if _, err := mgr.ValidateAccessCookie(access); err != nil {
		t.Fatalf("renewed access cookie must validate: %v", err)
	}

	// Only the successful call rotated: the old cookie is now spent, the
	// new one works.
	if _, _, err := mgr.RenewTokens(ctx, refresh); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected spent cookie to be rejected, got %v", err)
	}
	if _, _, err := mgr.RenewTokens(ctx, next); err != nil {
		t.Fatalf("rotated-to cookie must work: %v", err)
	}
}

func TestRenewTokensStoreOutageIsNotUnauthorized(t *testing.T) {
	mgr, st := newTestManager(t, nil)
	ctx := context.Background()

	refresh, err := mgr.IssueRefreshCookie(ctx, "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	st.failing = true
	_, _, err = mgr.RenewTokens(ctx, refresh)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatal("a store outage must never read as unauthorized")
	}
}

func TestNeedsRenewal(t *testing.T) {
	mgr, _ := newTestManager(t, nil)

	if !mgr.NeedsRenewal(nil) {
		t.Fatal("missing cookie needs renewal")
	}
	if !mgr.NeedsRenewal(&http.Cookie{Name: mgr.AccessCookieName(), Value: "garbage"}) {
		t.Fatal("unparsable cookie needs renewal")
	}

	fresh, err := mgr.IssueAccessCookie(context.Background(), "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if mgr.NeedsRenewal(fresh) {
		t.Fatal("freshly minted 25m token must not need renewal")
	}
}

func TestNeedsRenewalThresholdBoundary(t *testing.T) {
	keyPEM := testKeyPEM(t)
	mgr, _ := newTestManager(t, func(cfg *Config) {
		cfg.JWT.PrivateKeyPEM = keyPEM
	})

	codec, err := jwt.NewCodec(jwt.Config{PrivateKeyPEM: keyPEM, Issuer: "rentfold"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	token, err := codec.CreateAccess("u1", "alice@example.com", nil, nil, 10*time.Minute)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	cookie := &http.Cookie{Name: mgr.AccessCookieName(), Value: token}

	// Pin the clock relative to the token's actual (second-truncated) exp so
	// the boundary is exercised at exactly zero slack.
	claims, err := codec.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	exp := claims.ExpiresAt.Time
	threshold := mgr.cfg.Renewal.Threshold

	at := func(now time.Time) {
		mgr.now = func() time.Time { return now }
	}

	// Inclusive boundary: remaining == threshold already triggers renewal.
	at(exp.Add(-threshold))
	if !mgr.NeedsRenewal(cookie) {
		t.Fatal("exactly the threshold of validity left must trigger renewal")
	}
	at(exp.Add(-threshold - time.Second))
	if mgr.NeedsRenewal(cookie) {
		t.Fatal("one second above the threshold must not trigger renewal")
	}
	at(exp.Add(-time.Minute))
	if !mgr.NeedsRenewal(cookie) {
		t.Fatal("one minute of validity left must trigger renewal")
	}
}

func TestValidateRefreshCookieStaleAccessPath(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	refresh, err := mgr.IssueRefreshCookie(ctx, "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	principal, err := mgr.ValidateRefreshCookie(ctx, refresh)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if principal.UserID != "u1" || principal.Email != "alice@example.com" {
		t.Fatalf("unexpected principal %+v", principal)
	}
	// Live rebuild: the snapshot comes from the provider, not from claims.
	if principal.Snapshot.Projects["p1"] != "MANAGER" {
		t.Fatalf("expected live snapshot, got %+v", principal.Snapshot)
	}
}

func TestValidateRefreshCookieRejectsSupersededIdentifier(t *testing.T) {
	mgr, _ := newTestManager(t, nil)
	ctx := context.Background()

	old, err := mgr.IssueRefreshCookie(ctx, "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if _, err := mgr.IssueRefreshCookie(ctx, "u1", "alice@example.com"); err != nil {
		t.Fatalf("re-issue refresh: %v", err)
	}

	if _, err := mgr.ValidateRefreshCookie(ctx, old); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected superseded identifier to be rejected, got %v", err)
	}
}

func TestValidateRefreshCookieRejectsInactiveUser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKeyPEM = testKeyPEM(t)

	st := newMemoryStore()
	mgr, err := New().
		WithConfig(cfg).
		WithStore(st).
		WithSnapshotProvider(&stubSnapshots{}).
		WithUserDirectory(&stubDirectory{users: map[string]UserRecord{
			"u1": {UserID: "u1", Email: "alice@example.com", Active: false},
		}}).
		Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	defer mgr.Close()

	refresh, err := mgr.IssueRefreshCookie(context.Background(), "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if _, err := mgr.ValidateRefreshCookie(context.Background(), refresh); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected inactive user to be rejected, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	mgr, st := newTestManager(t, nil)
	ctx := context.Background()

	refresh, err := mgr.IssueRefreshCookie(ctx, "u1", "alice@example.com")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	if err := mgr.Logout(ctx, []*http.Cookie{refresh}); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := st.CurrentID(ctx, "u1"); !errors.Is(err, ErrNoRefreshRecord) {
		t.Fatalf("expected record gone after logout, got %v", err)
	}

	// Second logout with the now-deleted cookie, and logouts without any
	// usable cookie, are silent no-ops.
	if err := mgr.Logout(ctx, []*http.Cookie{refresh}); err != nil {
		t.Fatalf("repeated logout: %v", err)
	}
	if err := mgr.Logout(ctx, nil); err != nil {
		t.Fatalf("logout without cookies: %v", err)
	}
	if err := mgr.Logout(ctx, []*http.Cookie{{Name: mgr.RefreshCookieName(), Value: "garbage"}}); err != nil {
		t.Fatalf("logout with invalid cookie: %v", err)
	}

	if _, _, err := mgr.RenewTokens(ctx, refresh); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected renewal after logout to fail, got %v", err)
	}
}

func TestVerificationOnlyManagerCannotIssue(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}

	cfg := DefaultConfig()
	cfg.JWT.PublicKeyPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	mgr, err := New().WithConfig(cfg).WithStore(newMemoryStore()).Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	defer mgr.Close()

	if _, err := mgr.IssueAccessCookie(context.Background(), "u1", "a@example.com"); !errors.Is(err, ErrNoSigningKey) {
		t.Fatalf("expected ErrNoSigningKey, got %v", err)
	}
}

func TestSnapshotProviderFailureSurfaced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKeyPEM = testKeyPEM(t)

	mgr, err := New().
		WithConfig(cfg).
		WithStore(newMemoryStore()).
		WithSnapshotProvider(&stubSnapshots{err: errors.New("roles db down")}).
		Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	defer mgr.Close()

	if _, err := mgr.IssueAccessCookie(context.Background(), "u1", "a@example.com"); !errors.Is(err, ErrSnapshotUnavailable) {
		t.Fatalf("expected ErrSnapshotUnavailable, got %v", err)
	}
}
