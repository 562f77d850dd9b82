package authkit

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Config groups all tunables of the session subsystem. Zero values are
// filled from defaults during [Builder.Build]; the struct is treated as
// immutable afterwards.
type Config struct {
	JWT     JWTConfig
	Cookie  CookieConfig
	Renewal RenewalConfig
	Store   StoreConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// JWTConfig configures the token codec. Keys are PEM-encoded RSA material.
// When PrivateKeyPEM is empty the codec runs in verification-only mode and
// requires either PublicKeyPEM or a reachable KeySetURL.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
	Issuer        string
	Leeway        time.Duration

	// KeySetURL optionally points at a remote JWKS endpoint used to fetch
	// the verification key when no local key material is configured.
	KeySetURL string
	// SelfAddress is this service's own public base URL. A KeySetURL that
	// resolves to it is short-circuited to the local public key so boot
	// never issues a key fetch against itself.
	SelfAddress string
}

// CookieConfig controls the two session cookies. The access cookie is
// scoped to the whole API; the refresh cookie is restricted to the
// renewal-capable subtree so it is never sent on ordinary requests.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	AccessPath  string
	RefreshPath string
	Secure      bool
	SameSite    http.SameSite
}

// RenewalConfig controls silent token renewal.
type RenewalConfig struct {
	// Threshold is how close to expiry an access token may get before the
	// renewal filter rotates it. The boundary is inclusive: a token with
	// exactly Threshold of validity left is renewed.
	Threshold time.Duration
	// ExemptPaths are matched exactly and case-insensitively; requests to
	// them bypass both filters. Exact matching is deliberate: a prefix rule
	// would accidentally exempt nested paths.
	ExemptPaths []string
}

// StoreConfig configures the Redis refresh-identifier store.
type StoreConfig struct {
	RedisPrefix string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults: 25-minute access tokens,
// 7-day refresh tokens, 5-minute renewal threshold, strict same-site secure
// cookies, and the three unauthenticated authentication endpoints exempted.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  25 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "rentfold",
			Leeway:     30 * time.Second,
		},
		Cookie: CookieConfig{
			AccessName:  "remsfal_access_token",
			RefreshName: "remsfal_refresh_token",
			AccessPath:  "/api",
			RefreshPath: "/api/v1/authentication",
			Secure:      true,
			SameSite:    http.SameSiteStrictMode,
		},
		Renewal: RenewalConfig{
			Threshold: 5 * time.Minute,
			ExemptPaths: []string{
				"/api/v1/authentication/login",
				"/api/v1/authentication/session",
				"/api/v1/authentication/logout",
			},
		},
		Store: StoreConfig{
			RedisPrefix: "rfr",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKeyPEM = append([]byte(nil), cfg.JWT.PrivateKeyPEM...)
	out.JWT.PublicKeyPEM = append([]byte(nil), cfg.JWT.PublicKeyPEM...)
	out.Renewal.ExemptPaths = append([]string(nil), cfg.Renewal.ExemptPaths...)
	return out
}

func validateConfig(cfg Config) error {
	if cfg.JWT.AccessTTL <= 0 || cfg.JWT.RefreshTTL <= 0 {
		return errors.New("invalid TTL configuration")
	}
	if cfg.JWT.RefreshTTL <= cfg.JWT.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.JWT.Leeway < 0 || cfg.JWT.Leeway > 2*time.Minute {
		return errors.New("invalid leeway configuration")
	}
	if cfg.Renewal.Threshold <= 0 || cfg.Renewal.Threshold >= cfg.JWT.AccessTTL {
		return errors.New("renewal threshold must be positive and below the access TTL")
	}
	if strings.TrimSpace(cfg.Cookie.AccessName) == "" || strings.TrimSpace(cfg.Cookie.RefreshName) == "" {
		return errors.New("cookie names must not be empty")
	}
	if cfg.Cookie.AccessName == cfg.Cookie.RefreshName {
		return errors.New("access and refresh cookies must have distinct names")
	}
	if !strings.HasPrefix(cfg.Cookie.AccessPath, "/") || !strings.HasPrefix(cfg.Cookie.RefreshPath, "/") {
		return errors.New("cookie paths must be absolute")
	}
	for _, p := range cfg.Renewal.ExemptPaths {
		if !strings.HasPrefix(p, "/") {
			return errors.New("exempt paths must be absolute")
		}
	}
	return nil
}
