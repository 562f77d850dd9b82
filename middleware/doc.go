// Package middleware provides the two net/http filters that bind the
// session subsystem to request handling.
//
// [Authenticate] runs before business logic: it resolves a principal from
// the access cookie (or, when that is stale, from a store-checked refresh
// cookie) and rejects everything else with a uniform 401. [Renew] runs
// around the handler and decides at response-commit time whether to rotate
// the token pair and attach fresh Set-Cookie headers.
//
// Wrap order matters: Renew must be outermost, because renewal applies
// precisely when the access token is too stale for Authenticate's fast
// path.
//
//	handler = middleware.Renew(mgr, middleware.RenewConfig{})(
//	    middleware.Authenticate(mgr)(business))
//
// The filters are deliberately asymmetric: Authenticate rejects hard,
// Renew degrades soft. A renewal hiccup never turns an already-successful
// business response into an error; the next request's Authenticate pass
// rejects the session instead.
package middleware
