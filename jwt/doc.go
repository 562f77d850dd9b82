// Package jwt implements the session token codec: creation and
// verification of RS256-signed access and refresh tokens with closed,
// per-kind claim schemas.
//
// The two token kinds are distinct variants, not a shared claim bag. An
// access token carries the authorization snapshot (project and tenancy
// roles); a refresh token carries the server-checked refresh-token
// identifier. Verification requires the caller to state which kind it
// expects and rejects a mismatch as an invalid token.
//
// Key material is loaded once at construction and never mutated. Without a
// private key the codec is verification-only; the public key may then come
// from a remote JWKS endpoint, except when that endpoint is the service's
// own address, which is short-circuited to the locally configured key.
package jwt
