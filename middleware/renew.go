package middleware

import (
	"context"
	"net/http"
	"strings"

	authkit "github.com/rentfold/authkit"
)

type renewStateKey struct{}

// renewState is placed in the request context by [Renew] and mutated by the
// handler goroutine only; the renewal decision reads it after the handler
// returns control of the response.
type renewState struct {
	forced bool
}

// ForceRenewal marks the current request for token renewal regardless of
// remaining TTL. Handlers call it after an action that changed the caller's
// authorization snapshot, so the client sees its new roles on this response
// instead of waiting out the access TTL. No-op outside [Renew].
func ForceRenewal(r *http.Request) {
	if s, ok := r.Context().Value(renewStateKey{}).(*renewState); ok {
		s.forced = true
	}
}

// RenewConfig configures the response renewal filter.
type RenewConfig struct {
	// Trigger reports whether a just-completed request must force renewal.
	// Defaults to [ProjectCreatedTrigger].
	Trigger func(r *http.Request, status int) bool
}

// ProjectCreatedTrigger forces renewal after a successful project creation:
// creating a project grants the caller a new role, which must appear in the
// access token immediately rather than after up to a full access TTL.
func ProjectCreatedTrigger(r *http.Request, status int) bool {
	return r.Method == http.MethodPost &&
		strings.EqualFold(r.URL.Path, "/api/v1/projects") &&
		status >= 200 && status < 300
}

// Renew returns the response renewal filter. At the moment the handler's
// response headers are committed, it decides: renew when the access cookie
// is absent, unparsable, or within the renewal threshold of expiry; renew
// when the force-renewal trigger or [ForceRenewal] fired; otherwise do
// nothing.
//
// A failed renewal attempt is logged through the manager's audit pipeline
// and otherwise swallowed: the response that business logic already
// computed goes out with its cookies untouched, and the next request's
// authentication filter deals with the unrenewable session.
func Renew(mgr *authkit.SessionManager, cfg RenewConfig) func(http.Handler) http.Handler {
	trigger := cfg.Trigger
	if trigger == nil {
		trigger = ProjectCreatedTrigger
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mgr == nil || mgr.IsExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			state := &renewState{}
			r = r.WithContext(context.WithValue(r.Context(), renewStateKey{}, state))

			rw := &renewingWriter{
				ResponseWriter: w,
				mgr:            mgr,
				req:            r,
				state:          state,
				trigger:        trigger,
			}
			next.ServeHTTP(rw, r)
			rw.finish()
		})
	}
}

// renewingWriter delays the renewal decision until the response is
// committed, which is the last moment Set-Cookie headers can still be
// attached.
type renewingWriter struct {
	http.ResponseWriter
	mgr     *authkit.SessionManager
	req     *http.Request
	state   *renewState
	trigger func(*http.Request, int) bool

	decided bool
}

func (w *renewingWriter) WriteHeader(status int) {
	if !w.decided {
		w.decided = true
		w.maybeRenew(status)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *renewingWriter) Write(b []byte) (int, error) {
	if !w.decided {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush commits the response first: once bytes hit the wire no Set-Cookie
// header can follow, so streaming handlers get their renewal decision on
// the first flush.
func (w *renewingWriter) Flush() {
	if !w.decided {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController, keeping
// Hijack and per-request deadline support intact for upgrading handlers.
func (w *renewingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// finish covers handlers that return without writing anything; the server
// will emit an implicit 200 afterwards.
func (w *renewingWriter) finish() {
	if !w.decided {
		w.decided = true
		w.maybeRenew(http.StatusOK)
	}
}

func (w *renewingWriter) maybeRenew(status int) {
	needed := w.mgr.NeedsRenewal(cookieOrNil(w.req, w.mgr.AccessCookieName()))
	forced := w.state.forced || w.trigger(w.req, status)
	if !needed && !forced {
		return
	}
	if forced && !needed {
		w.mgr.RecordForcedRenewal()
	}

	access, refresh, err := w.mgr.RenewTokens(w.req.Context(), cookieOrNil(w.req, w.mgr.RefreshCookieName()))
	if err != nil {
		// RenewTokens has already audited the failure. The next request's
		// authentication filter handles an unrenewable session.
		return
	}

	http.SetCookie(w.ResponseWriter, access)
	http.SetCookie(w.ResponseWriter, refresh)
}
