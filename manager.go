package authkit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentfold/authkit/jwt"
)

// SessionManager orchestrates token issuance, validation, rotation, and the
// binding of both token kinds to HTTP cookies. Construct it through
// [Builder.Build]; afterwards it is immutable and safe for concurrent use.
type SessionManager struct {
	cfg       Config
	codec     *jwt.Codec
	store     RefreshTokenStore
	snapshots AuthorizationSnapshotProvider
	users     UserDirectory
	audit     *auditDispatcher
	metrics   *Metrics

	// now is time.Now outside of tests.
	now func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (m *SessionManager) Close() {
	if m == nil {
		return
	}
	m.audit.Close()
}

// MetricsSnapshot returns a copy of all counters.
func (m *SessionManager) MetricsSnapshot() MetricsSnapshot {
	if m == nil || m.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return m.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (m *SessionManager) AuditDropped() uint64 {
	if m == nil {
		return 0
	}
	return m.audit.Dropped()
}

func (m *SessionManager) metricInc(id MetricID) {
	if m == nil {
		return
	}
	m.metrics.Inc(id)
}

// RecordUnauthorized counts a request rejected by the authentication
// filter. The rejection itself happens in middleware; the counter lives
// here with the rest of the subsystem's metrics.
func (m *SessionManager) RecordUnauthorized() {
	m.metricInc(MetricUnauthorized)
}

// RecordForcedRenewal counts a renewal triggered ahead of expiry by a
// privilege-changing request.
func (m *SessionManager) RecordForcedRenewal() {
	m.metricInc(MetricForcedRenewal)
}

// AccessCookieName returns the configured access cookie name.
func (m *SessionManager) AccessCookieName() string { return m.cfg.Cookie.AccessName }

// RefreshCookieName returns the configured refresh cookie name.
func (m *SessionManager) RefreshCookieName() string { return m.cfg.Cookie.RefreshName }

// IsExemptPath reports whether the path is one of the enumerated
// unauthenticated endpoints. Comparison is exact and case-insensitive; a
// prefix rule would accidentally exempt nested paths.
func (m *SessionManager) IsExemptPath(path string) bool {
	if m == nil {
		return false
	}
	for _, p := range m.cfg.Renewal.ExemptPaths {
		if strings.EqualFold(path, p) {
			return true
		}
	}
	return false
}

// IssueAccessCookie fetches the caller's current authorization snapshot,
// mints a short-lived access token, and wraps it in the API-wide cookie.
func (m *SessionManager) IssueAccessCookie(ctx context.Context, userID, email string) (*http.Cookie, error) {
	if m == nil || m.codec == nil {
		return nil, ErrManagerNotReady
	}

	snapshot, err := m.fetchSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	token, err := m.codec.CreateAccess(userID, email, snapshot.Projects, snapshot.Tenancies, m.cfg.JWT.AccessTTL)
	if err != nil {
		return nil, err
	}

	m.metricInc(MetricAccessIssued)
	m.audit.Emit(ctx, AuditEvent{EventType: AuditAccessIssued, UserID: userID, Email: email, Success: true})

	return m.newAccessCookie(token), nil
}

// IssueRefreshCookie generates a fresh refresh-token identifier, overwrites
// the store record for the user, and wraps the minted refresh token in the
// path-restricted cookie. Any previously issued refresh token for the user
// is thereby revoked, signature and expiry notwithstanding.
func (m *SessionManager) IssueRefreshCookie(ctx context.Context, userID, email string) (*http.Cookie, error) {
	if m == nil || m.codec == nil {
		return nil, ErrManagerNotReady
	}

	id := uuid.NewString()
	if err := m.store.Put(ctx, userID, id, m.cfg.JWT.RefreshTTL); err != nil {
		m.metricInc(MetricStoreError)
		m.audit.Emit(ctx, AuditEvent{EventType: AuditStoreError, UserID: userID, Error: err.Error()})
		return nil, err
	}

	token, err := m.codec.CreateRefresh(userID, email, id, m.cfg.JWT.RefreshTTL)
	if err != nil {
		return nil, err
	}

	m.metricInc(MetricRefreshIssued)
	m.audit.Emit(ctx, AuditEvent{EventType: AuditRefreshIssued, UserID: userID, Email: email, Success: true})

	return m.newRefreshCookie(token), nil
}

// RenewTokens validates a presented refresh cookie against the store and,
// on success, issues a brand-new access+refresh pair. The store identifier
// is replaced on every successful call, not just near expiry: a rotated-away
// refresh token can never succeed again, which is what turns a replay into
// a detectable event.
//
// The rotation is the last, commit-like step. Both tokens are minted before
// the store is touched, so a snapshot or signing failure leaves the current
// identifier in place and the same refresh cookie usable on retry.
func (m *SessionManager) RenewTokens(ctx context.Context, refreshCookie *http.Cookie) (*http.Cookie, *http.Cookie, error) {
	if m == nil || m.codec == nil {
		return nil, nil, ErrManagerNotReady
	}
	if refreshCookie == nil || refreshCookie.Value == "" {
		m.metricInc(MetricRenewFailure)
		return nil, nil, ErrUnauthorized
	}

	claims, err := m.codec.ParseRefresh(refreshCookie.Value)
	if err != nil {
		m.metricInc(MetricRenewFailure)
		m.audit.Emit(ctx, AuditEvent{EventType: AuditRenewFailure, Error: err.Error()})
		return nil, nil, errors.Join(ErrUnauthorized, err)
	}

	snapshot, err := m.fetchSnapshot(ctx, claims.Subject)
	if err != nil {
		m.metricInc(MetricRenewFailure)
		m.audit.Emit(ctx, AuditEvent{EventType: AuditRenewFailure, UserID: claims.Subject, Error: err.Error()})
		return nil, nil, err
	}
	accessToken, err := m.codec.CreateAccess(claims.Subject, claims.Email, snapshot.Projects, snapshot.Tenancies, m.cfg.JWT.AccessTTL)
	if err != nil {
		m.metricInc(MetricRenewFailure)
		return nil, nil, err
	}

	nextID := uuid.NewString()
	refreshToken, err := m.codec.CreateRefresh(claims.Subject, claims.Email, nextID, m.cfg.JWT.RefreshTTL)
	if err != nil {
		m.metricInc(MetricRenewFailure)
		return nil, nil, err
	}

	err = m.store.Rotate(ctx, claims.Subject, claims.RefreshTokenID, nextID, m.cfg.JWT.RefreshTTL)
	switch {
	case err == nil:
	case errors.Is(err, ErrRefreshReuse):
		m.metricInc(MetricRenewFailure)
		m.metricInc(MetricRefreshReuseDetected)
		m.audit.Emit(ctx, AuditEvent{EventType: AuditReuseDetected, UserID: claims.Subject, Email: claims.Email, Error: err.Error()})
		return nil, nil, errors.Join(ErrUnauthorized, err)
	case errors.Is(err, ErrNoRefreshRecord):
		m.metricInc(MetricRenewFailure)
		m.audit.Emit(ctx, AuditEvent{EventType: AuditRenewFailure, UserID: claims.Subject, Error: err.Error()})
		return nil, nil, errors.Join(ErrUnauthorized, err)
	default:
		m.metricInc(MetricStoreError)
		m.audit.Emit(ctx, AuditEvent{EventType: AuditStoreError, UserID: claims.Subject, Error: err.Error()})
		return nil, nil, err
	}

	m.metricInc(MetricRenewSuccess)
	m.metricInc(MetricAccessIssued)
	m.metricInc(MetricRefreshIssued)
	m.audit.Emit(ctx, AuditEvent{EventType: AuditRenewSuccess, UserID: claims.Subject, Email: claims.Email, Success: true})

	return m.newAccessCookie(accessToken), m.newRefreshCookie(refreshToken), nil
}

// NeedsRenewal reports whether the access cookie is missing, unparsable, or
// close enough to expiry that the renewal filter should rotate it. The
// boundary is inclusive: exactly Threshold of remaining validity counts as
// needing renewal.
func (m *SessionManager) NeedsRenewal(accessCookie *http.Cookie) bool {
	if m == nil || m.codec == nil {
		return false
	}
	if accessCookie == nil || accessCookie.Value == "" {
		return true
	}

	claims, err := m.codec.ParseAccess(accessCookie.Value)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}

	return claims.ExpiresAt.Time.Sub(m.now()) <= m.cfg.Renewal.Threshold
}

// ValidateAccessCookie verifies the access cookie and returns the principal
// cached in it. No store lookup happens on this path.
func (m *SessionManager) ValidateAccessCookie(accessCookie *http.Cookie) (*Principal, error) {
	if m == nil || m.codec == nil {
		return nil, ErrManagerNotReady
	}
	if accessCookie == nil || accessCookie.Value == "" {
		return nil, ErrUnauthorized
	}

	claims, err := m.codec.ParseAccess(accessCookie.Value)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}

	p := &Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Snapshot: AuthorizationSnapshot{
			Projects:  claims.Projects,
			Tenancies: claims.Tenancies,
		}.Clone(),
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// ValidateRefreshCookie authenticates the stale-access path: the refresh
// token must verify and its embedded identifier must still match the store.
// The principal is rebuilt live (directory lookup, fresh snapshot) rather
// than trusted from stale access claims.
func (m *SessionManager) ValidateRefreshCookie(ctx context.Context, refreshCookie *http.Cookie) (*Principal, error) {
	if m == nil || m.codec == nil {
		return nil, ErrManagerNotReady
	}
	if refreshCookie == nil || refreshCookie.Value == "" {
		return nil, ErrUnauthorized
	}

	claims, err := m.codec.ParseRefresh(refreshCookie.Value)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}

	currentID, err := m.store.CurrentID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNoRefreshRecord) {
			return nil, errors.Join(ErrUnauthorized, err)
		}
		m.metricInc(MetricStoreError)
		return nil, err
	}
	if currentID != claims.RefreshTokenID {
		m.metricInc(MetricRefreshReuseDetected)
		m.audit.Emit(ctx, AuditEvent{EventType: AuditReuseDetected, UserID: claims.Subject, Email: claims.Email, Error: "stale refresh identifier"})
		return nil, errors.Join(ErrUnauthorized, ErrRefreshReuse)
	}

	email := claims.Email
	if m.users != nil {
		record, err := m.users.Resolve(ctx, claims.Subject)
		if err != nil {
			return nil, errors.Join(ErrUnauthorized, err)
		}
		if !record.Active {
			return nil, ErrUnauthorized
		}
		email = record.Email
	}

	snapshot, err := m.fetchSnapshot(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	m.metricInc(MetricStaleAccessAccepted)
	m.audit.Emit(ctx, AuditEvent{EventType: AuditStaleAccessAuth, UserID: claims.Subject, Email: email, Success: true})

	return &Principal{
		UserID:   claims.Subject,
		Email:    email,
		Snapshot: snapshot,
	}, nil
}

// Logout deletes the store record named by a parseable refresh cookie.
// Missing or invalid cookies are ignored: logout is idempotent and
// best-effort by contract.
func (m *SessionManager) Logout(ctx context.Context, cookies []*http.Cookie) error {
	if m == nil || m.codec == nil {
		return ErrManagerNotReady
	}

	var refreshCookie *http.Cookie
	for _, c := range cookies {
		if c != nil && c.Name == m.cfg.Cookie.RefreshName {
			refreshCookie = c
			break
		}
	}
	if refreshCookie == nil || refreshCookie.Value == "" {
		return nil
	}

	claims, err := m.codec.ParseRefresh(refreshCookie.Value)
	if err != nil {
		return nil
	}

	if err := m.store.Delete(ctx, claims.Subject); err != nil {
		m.metricInc(MetricStoreError)
		m.audit.Emit(ctx, AuditEvent{EventType: AuditStoreError, UserID: claims.Subject, Error: err.Error()})
		return err
	}

	m.metricInc(MetricLogout)
	m.audit.Emit(ctx, AuditEvent{EventType: AuditLogout, UserID: claims.Subject, Email: claims.Email, Success: true})
	return nil
}

func (m *SessionManager) fetchSnapshot(ctx context.Context, userID string) (AuthorizationSnapshot, error) {
	if m.snapshots == nil {
		return AuthorizationSnapshot{}, nil
	}

	projects, err := m.snapshots.ProjectRoles(ctx, userID)
	if err != nil {
		return AuthorizationSnapshot{}, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}
	tenancies, err := m.snapshots.TenancyRoles(ctx, userID)
	if err != nil {
		return AuthorizationSnapshot{}, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}

	return AuthorizationSnapshot{Projects: projects, Tenancies: tenancies}, nil
}
