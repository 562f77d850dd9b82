package authkit

import "net/http"

func (m *SessionManager) newAccessCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:   m.cfg.Cookie.AccessName,
		Value:  token,
		Path:   m.cfg.Cookie.AccessPath,
		MaxAge: int(m.cfg.JWT.AccessTTL.Seconds()),
		// HttpOnly is deliberately false: the web client reads the access
		// token to display session state without a round-trip. This trades
		// XSS hardening for UX and is the one intentional deviation from
		// the cookie settings below.
		HttpOnly: false,
		Secure:   m.cfg.Cookie.Secure,
		SameSite: m.cfg.Cookie.SameSite,
	}
}

func (m *SessionManager) newRefreshCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.Cookie.RefreshName,
		Value:    token,
		Path:     m.cfg.Cookie.RefreshPath,
		MaxAge:   int(m.cfg.JWT.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Cookie.Secure,
		SameSite: m.cfg.Cookie.SameSite,
	}
}

// RemovalCookie returns an expiring, empty-valued cookie for the named
// session cookie. The path must match the one the cookie was set with: a
// removal cookie on the wrong path is silently ignored by browsers, so the
// access/refresh distinction here is a correctness requirement, not
// cosmetics. Unknown names fall back to the access path.
func (m *SessionManager) RemovalCookie(name string) *http.Cookie {
	path := m.cfg.Cookie.AccessPath
	httpOnly := false
	if name == m.cfg.Cookie.RefreshName {
		path = m.cfg.Cookie.RefreshPath
		httpOnly = true
	}

	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   m.cfg.Cookie.Secure,
		SameSite: m.cfg.Cookie.SameSite,
	}
}
