package authkit

import (
	"errors"
	"time"

	"github.com/rentfold/authkit/jwt"
)

// Builder assembles a [SessionManager]. Construction is allocation-only
// until Build, which validates the configuration and loads key material.
type Builder struct {
	config    Config
	store     RefreshTokenStore
	snapshots AuthorizationSnapshotProvider
	users     UserDirectory
	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration. The config is cloned; later
// mutation of the argument has no effect.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the refresh-token identifier store. Required.
func (b *Builder) WithStore(s RefreshTokenStore) *Builder {
	b.store = s
	return b
}

// WithSnapshotProvider sets the authorization snapshot source. Required for
// issuing access tokens with roles; optional for verification-only use.
func (b *Builder) WithSnapshotProvider(p AuthorizationSnapshotProvider) *Builder {
	b.snapshots = p
	return b
}

// WithUserDirectory sets the identity resolver used on the stale-access
// renewal path. Optional; without it the principal is rebuilt from refresh
// claims alone.
func (b *Builder) WithUserDirectory(d UserDirectory) *Builder {
	b.users = d
	return b
}

// WithAuditSink sets the audit event destination. Only consulted when
// AuditConfig.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, loads signing/verification keys, and
// returns the manager. Key-loading failures are fatal here: without keys no
// authenticated traffic can be served, so they must not surface lazily on
// the first request.
func (b *Builder) Build() (*SessionManager, error) {
	if b == nil {
		return nil, ErrManagerNotReady
	}
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("refresh token store is required")
	}
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}

	codec, err := jwt.NewCodec(jwt.Config{
		PrivateKeyPEM: b.config.JWT.PrivateKeyPEM,
		PublicKeyPEM:  b.config.JWT.PublicKeyPEM,
		Issuer:        b.config.JWT.Issuer,
		Leeway:        b.config.JWT.Leeway,
		KeySetURL:     b.config.JWT.KeySetURL,
		SelfAddress:   b.config.JWT.SelfAddress,
	})
	if err != nil {
		return nil, err
	}

	b.built = true

	return &SessionManager{
		cfg:       b.config,
		codec:     codec,
		store:     b.store,
		snapshots: b.snapshots,
		users:     b.users,
		audit:     newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:   NewMetrics(b.config.Metrics),
		now:       time.Now,
	}, nil
}
