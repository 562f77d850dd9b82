// Package store provides the Redis-backed refresh-token identifier store:
// one key per user holding the single currently valid identifier.
//
// Rotation is a server-side compare-and-swap executed as a Lua script, so
// of two concurrent renewals presenting the same previous identifier
// exactly one wins; the loser observes a reuse error instead of silently
// "succeeding" with a discarded write.
//
// # What this package must NOT do
//
//   - Parse or verify tokens; it only stores opaque identifiers.
//   - Conflate Redis outages with missing records. An outage must never
//     read as "logged out".
package store
