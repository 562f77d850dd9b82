package jwt

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Config carries the codec's key material and verification parameters.
type Config struct {
	// PrivateKeyPEM is the PEM-encoded RSA signing key. Optional: without
	// it the codec is verification-only.
	PrivateKeyPEM []byte
	// PublicKeyPEM is the PEM-encoded RSA verification key. Optional when
	// a private key is present (the public half is derived) or when
	// KeySetURL is configured.
	PublicKeyPEM []byte
	Issuer       string
	Leeway       time.Duration

	// KeySetURL points at a remote JWKS endpoint consulted only when no
	// local verification key can be established.
	KeySetURL string
	// SelfAddress is this service's own base URL. A KeySetURL with the
	// same host is never fetched; the local key is used instead.
	SelfAddress string
	// FetchTimeout bounds the JWKS fetch at construction. Defaults to 10s.
	FetchTimeout time.Duration
}

// Codec creates and verifies the two session token kinds. Immutable after
// NewCodec; safe for concurrent use.
type Codec struct {
	signKey   *rsa.PrivateKey
	verifyKey *rsa.PublicKey
	issuer    string
	leeway    time.Duration
}

// NewCodec loads key material and returns a ready codec. It fails when no
// verification key can be established: the service cannot serve any
// authenticated traffic without one, so key problems are surfaced at boot
// rather than on the first request.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	c := &Codec{issuer: cfg.Issuer, leeway: cfg.Leeway}

	if len(cfg.PrivateKeyPEM) > 0 {
		priv, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse rsa private key: %w", err)
		}
		c.signKey = priv
	}

	if len(cfg.PublicKeyPEM) > 0 {
		pub, err := jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse rsa public key: %w", err)
		}
		c.verifyKey = pub
	}

	if c.verifyKey == nil && c.signKey != nil {
		c.verifyKey = &c.signKey.PublicKey
	}

	if c.verifyKey == nil {
		if cfg.KeySetURL == "" {
			return nil, errors.New("no verification key: configure a public key, private key, or key-set url")
		}
		if sameHost(cfg.KeySetURL, cfg.SelfAddress) {
			// Self-referential lookup: the only local key we could serve
			// is the one we failed to load above.
			return nil, errors.New("key-set url points at this service but no local key is configured")
		}
		pub, err := fetchKeySet(cfg)
		if err != nil {
			return nil, err
		}
		c.verifyKey = pub
	}

	return c, nil
}

func fetchKeySet(cfg Config) (*rsa.PublicKey, error) {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	set, err := jwk.Fetch(ctx, cfg.KeySetURL)
	if err != nil {
		return nil, fmt.Errorf("fetch key set %s: %w", cfg.KeySetURL, err)
	}

	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		var pub rsa.PublicKey
		if err := jwk.Export(key, &pub); err != nil {
			continue
		}
		return &pub, nil
	}

	return nil, fmt.Errorf("key set %s contains no usable rsa key", cfg.KeySetURL)
}

func sameHost(keySetURL, selfAddress string) bool {
	if keySetURL == "" || selfAddress == "" {
		return false
	}
	a, err := url.Parse(keySetURL)
	if err != nil {
		return false
	}
	b, err := url.Parse(selfAddress)
	if err != nil {
		return false
	}
	return a.Host != "" && strings.EqualFold(a.Host, b.Host)
}
