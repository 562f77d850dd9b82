// Package authkit provides the cookie-based session subsystem for the
// rentfold property-management API: RS256 access tokens carrying a cached
// authorization snapshot, rotating refresh tokens with server-side reuse
// detection, and the two HTTP filters that bind both to request handling.
//
// The package is designed for concurrent server workloads: SessionManager
// methods are safe to call from multiple goroutines after initialization
// through [Builder.Build]. The manager itself holds no mutable state beyond
// the signing keys loaded once at startup; all cross-request state lives in
// the injected [RefreshTokenStore].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [SessionManager], [Builder],
// [Config], the collaborator interfaces ([RefreshTokenStore],
// [AuthorizationSnapshotProvider], [UserDirectory]), and value types
// (Principal, MetricsSnapshot). Token encoding lives in the jwt subpackage,
// the Redis-backed store in store, and the request/response filters in
// middleware.
//
// # What this package must NOT do
//
//   - Expose Redis clients or token encoding details in its public API.
//   - Hold ambient global state; every consumer receives its
//     *SessionManager by injection.
//   - Distinguish token-validation failure causes to HTTP clients; all of
//     them map to the same unauthorized rejection.
package authkit
