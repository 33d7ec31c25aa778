package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind selects which secret and lifetime sign a credential.
type TokenKind string

const (
	// TokenAccess is the short-lived per-request credential.
	TokenAccess TokenKind = "access"
	// TokenRefresh is the long-lived credential used only to mint new pairs.
	TokenRefresh TokenKind = "refresh"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// RoleUnverified is the role hint embedded into access tokens issued to
// accounts that have not verified their email yet. It is display-only; the
// authentication gate always re-reads verification state from storage.
const RoleUnverified = "unverified"

// Claims are the verified contents of a keygate JWT.
type Claims struct {
	// Role and EmailVerified are issuance-time hints, never a source of truth.
	Role          string `json:"role,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	TokenKind     string `json:"token_kind"`
	jwt.RegisteredClaims
}

// Codec signs and verifies the two token kinds with independently configured
// secrets and lifetimes. It is stateless and safe for concurrent use.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
	}
}

// WithCodecIssuer sets the issuer claim.
func WithCodecIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = strings.TrimSpace(issuer)
	}
}

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec. Both secrets are required and must differ so a
// refresh token can never pass as an access token.
func NewCodec(accessSecret, refreshSecret string, opts ...CodecOption) (*Codec, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: both token secrets are required")
	}
	c := &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RefreshTTL reports the configured refresh lifetime so callers can store the
// server-side expiry alongside the token.
func (c *Codec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// Issue signs a token of the given kind for the user. Access tokens embed the
// role/email-verified hint; refresh tokens carry the subject only.
func (c *Codec) Issue(u *User, kind TokenKind) (string, time.Time, error) {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return "", time.Time{}, errors.New("auth: user id is required")
	}
	secret, ttl, err := c.kindConfig(kind)
	if err != nil {
		return "", time.Time{}, err
	}

	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		TokenKind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if c.issuer != "" {
		claims.Issuer = c.issuer
	}
	if kind == TokenAccess {
		claims.EmailVerified = u.IsEmailVerified
		claims.Role = roleHint(u)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify validates a token of the given kind. Malformed tokens, signature
// mismatches, expired tokens and kind mismatches all fail with
// ErrInvalidToken; the cause is not distinguished to the caller.
func (c *Codec) Verify(token string, kind TokenKind) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	secret, _, err := c.kindConfig(kind)
	if err != nil {
		return nil, err
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenKind != string(kind) {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if c.issuer != "" && claims.Issuer != "" && !strings.EqualFold(claims.Issuer, c.issuer) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) kindConfig(kind TokenKind) ([]byte, time.Duration, error) {
	switch kind {
	case TokenAccess:
		return c.accessSecret, c.accessTTL, nil
	case TokenRefresh:
		return c.refreshSecret, c.refreshTTL, nil
	default:
		return nil, 0, errors.New("auth: unknown token kind")
	}
}

func roleHint(u *User) string {
	if !u.IsEmailVerified {
		return RoleUnverified
	}
	if role, ok := u.Role.Resolved(); ok {
		return role.Name
	}
	return ""
}
