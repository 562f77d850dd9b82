package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind tags a token variant. It is embedded as the "knd" claim and checked
// during verification so an access token can never pass as a refresh token
// or vice versa.
type Kind string

const (
	// KindAccess marks short-lived tokens used on ordinary API calls.
	KindAccess Kind = "access"
	// KindRefresh marks long-lived tokens used only for renewal.
	KindRefresh Kind = "refresh"
)

var (
	// ErrInvalid covers malformed tokens, bad signatures, kind mismatches,
	// and missing required claims. Callers treat all of these identically.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned when the only defect is a past exp claim.
	ErrExpired = errors.New("token expired")
	// ErrNoSigningKey is returned by Create* in verification-only mode.
	ErrNoSigningKey = errors.New("no signing key configured")
)

// AccessClaims is the closed claim schema of an access token.
type AccessClaims struct {
	Email     string            `json:"email"`
	TokenKind Kind              `json:"knd"`
	Projects  map[string]string `json:"projects,omitempty"`
	Tenancies map[string]string `json:"tenancies,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the closed claim schema of a refresh token.
type RefreshClaims struct {
	Email          string `json:"email"`
	TokenKind      Kind   `json:"knd"`
	RefreshTokenID string `json:"refreshTokenId"`
	jwt.RegisteredClaims
}

// CreateAccess mints a signed access token. Every call with ttl > 0
// produces a structurally valid, verifiable token.
func (c *Codec) CreateAccess(userID, email string, projects, tenancies map[string]string, ttl time.Duration) (string, error) {
	if c.signKey == nil {
		return "", ErrNoSigningKey
	}
	if ttl <= 0 {
		return "", errors.New("non-positive ttl")
	}

	now := time.Now()
	claims := AccessClaims{
		Email:     email,
		TokenKind: KindAccess,
		Projects:  projects,
		Tenancies: tenancies,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.signKey)
}

// CreateRefresh mints a signed refresh token embedding the server-side
// refresh-token identifier.
func (c *Codec) CreateRefresh(userID, email, refreshTokenID string, ttl time.Duration) (string, error) {
	if c.signKey == nil {
		return "", ErrNoSigningKey
	}
	if ttl <= 0 {
		return "", errors.New("non-positive ttl")
	}
	if refreshTokenID == "" {
		return "", errors.New("empty refresh token id")
	}

	now := time.Now()
	claims := RefreshClaims{
		Email:          email,
		TokenKind:      KindRefresh,
		RefreshTokenID: refreshTokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.signKey)
}

// ParseAccess verifies signature, expiry, kind, and required claims of an
// access token. All failures except pure expiry collapse into ErrInvalid so
// callers cannot accidentally build a failure oracle.
func (c *Codec) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.TokenKind != KindAccess {
		return nil, fmt.Errorf("%w: token kind mismatch", ErrInvalid)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrInvalid)
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token. The embedded identifier claim is
// required; its presence says nothing about server-side validity, which the
// session manager checks against the store.
func (c *Codec) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.TokenKind != KindRefresh {
		return nil, fmt.Errorf("%w: token kind mismatch", ErrInvalid)
	}
	if claims.Subject == "" || claims.Email == "" || claims.RefreshTokenID == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrInvalid)
	}
	return claims, nil
}

func (c *Codec) parse(token string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.leeway > 0 {
		options = append(options, jwt.WithLeeway(c.leeway))
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.verifyKey, nil
	})
	if err != nil {
		// Expiry is the one cause worth classifying: a well-formed,
		// correctly signed token past its exp is routine and triggers the
		// renewal path rather than rejection handling.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !parsed.Valid {
		return ErrInvalid
	}
	return nil
}

// CanSign reports whether the codec holds a private key, i.e. whether it
// can issue tokens locally or is verification-only.
func (c *Codec) CanSign() bool {
	return c != nil && c.signKey != nil
}
