package middleware

import (
	"context"
	"errors"
	"net/http"

	authkit "github.com/rentfold/authkit"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal attached by [Authenticate].
func PrincipalFromContext(ctx context.Context) (*authkit.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authkit.Principal)
	return p, ok
}

// Authenticate returns the request authentication filter. Requests to the
// exempt paths pass through untouched. For everything else the filter
// resolves a principal or short-circuits the request:
//
//	valid access cookie                          → principal from claims
//	stale access, store-matched refresh cookie   → principal rebuilt live
//	anything else                                → 401, handler never runs
//
// Validation failure causes are never distinguished in the response; only
// a store outage breaks the pattern, as a 500, because treating it as
// unauthorized would log out legitimate users.
func Authenticate(mgr *authkit.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mgr == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if mgr.IsExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := mgr.ValidateAccessCookie(cookieOrNil(r, mgr.AccessCookieName()))
			if err != nil {
				principal, err = mgr.ValidateRefreshCookie(r.Context(), cookieOrNil(r, mgr.RefreshCookieName()))
			}
			if err != nil {
				if errors.Is(err, authkit.ErrStoreUnavailable) {
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				mgr.RecordUnauthorized()
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func cookieOrNil(r *http.Request, name string) *http.Cookie {
	c, err := r.Cookie(name)
	if err != nil {
		return nil
	}
	return c
}
