package authkit

import (
	"errors"

	"github.com/rentfold/authkit/jwt"
)

var (
	// ErrUnauthorized is the uniform rejection for any missing, malformed,
	// expired, or revoked credential. HTTP callers map it to 401 without
	// distinguishing the cause.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenInvalid covers structural and cryptographic token failures.
	ErrTokenInvalid = jwt.ErrInvalid
	// ErrTokenExpired is returned when a token's exp claim is in the past.
	ErrTokenExpired = jwt.ErrExpired
	// ErrRefreshReuse is returned when a presented refresh-token identifier
	// no longer matches the stored one (a rotated-away token was replayed).
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrNoRefreshRecord is returned when the store has no identifier for
	// the subject, e.g. after logout.
	ErrNoRefreshRecord = errors.New("no refresh token record")
	// ErrStoreUnavailable signals a refresh-token store outage. It must
	// surface as a server error, never as unauthorized: treating an outage
	// as "not logged in" would force-logout legitimate users.
	ErrStoreUnavailable = errors.New("refresh token store unavailable")
	// ErrNoSigningKey is returned when token issuance is attempted in
	// verification-only mode (no private key configured).
	ErrNoSigningKey = jwt.ErrNoSigningKey
	// ErrSnapshotUnavailable signals that the authorization snapshot
	// provider failed to resolve roles for a user.
	ErrSnapshotUnavailable = errors.New("authorization snapshot unavailable")
	// ErrUserNotFound is returned by UserDirectory implementations for
	// unknown user ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrManagerNotReady is returned when a SessionManager is used before
	// Builder.Build completed.
	ErrManagerNotReady = errors.New("session manager not initialized")
)
