package authkit

import (
	"context"
	"time"
)

// AuthorizationSnapshot is the set of scope→role assignments embedded in an
// access token at mint time. Keys are project or tenancy ids, values are
// role names. The snapshot is a cache: it reflects authorization at issue
// time and is only refreshed when tokens rotate.
type AuthorizationSnapshot struct {
	Projects  map[string]string
	Tenancies map[string]string
}

// Clone returns a deep copy. Snapshots attached to a Principal are treated
// as read-only by downstream handlers; cloning keeps the parsed claims
// immutable.
func (s AuthorizationSnapshot) Clone() AuthorizationSnapshot {
	out := AuthorizationSnapshot{}
	if s.Projects != nil {
		out.Projects = make(map[string]string, len(s.Projects))
		for k, v := range s.Projects {
			out.Projects[k] = v
		}
	}
	if s.Tenancies != nil {
		out.Tenancies = make(map[string]string, len(s.Tenancies))
		for k, v := range s.Tenancies {
			out.Tenancies[k] = v
		}
	}
	return out
}

// Principal is the per-request identity resolved by the authentication
// filter. It is immutable after construction and discarded with the request.
type Principal struct {
	UserID    string
	Email     string
	Snapshot  AuthorizationSnapshot
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshTokenStore persists, per user, the single currently valid
// refresh-token identifier. Implementations must guarantee at most one
// identifier per user and an atomic compare-and-swap Rotate: of two
// concurrent rotations presenting the same previous identifier, exactly one
// succeeds and the other observes ErrRefreshReuse.
//
// Transport failures must be reported distinctly (wrapping a store-level
// unavailability error), never as a missing record.
type RefreshTokenStore interface {
	// CurrentID returns the stored identifier for userID, or
	// ErrNoRefreshRecord when none exists.
	CurrentID(ctx context.Context, userID string) (string, error)

	// Put unconditionally replaces the stored identifier. Used at login:
	// whether or not a record existed, exactly one identifier remains.
	Put(ctx context.Context, userID, id string, ttl time.Duration) error

	// Rotate replaces the stored identifier only if it currently equals
	// previousID. Mismatch returns ErrRefreshReuse, a missing record
	// ErrNoRefreshRecord.
	Rotate(ctx context.Context, userID, previousID, nextID string, ttl time.Duration) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, userID string) error
}

// AuthorizationSnapshotProvider resolves the live project and tenancy roles
// for a user. It is consulted whenever an access token is minted.
type AuthorizationSnapshotProvider interface {
	ProjectRoles(ctx context.Context, userID string) (map[string]string, error)
	TenancyRoles(ctx context.Context, userID string) (map[string]string, error)
}

// UserRecord is the minimal identity record resolved through UserDirectory.
type UserRecord struct {
	UserID string
	Email  string
	Active bool
}

// UserDirectory resolves user identity. The session subsystem consults it
// on the stale-access renewal path to rebuild a live principal.
type UserDirectory interface {
	Resolve(ctx context.Context, userID string) (UserRecord, error)
}
