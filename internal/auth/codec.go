package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	minSecretBytes = 32
)

var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpiredToken     = errors.New("token expired")
	ErrWeakSecret       = errors.New("jwt secret must be at least 32 bytes")
)

type Claims struct {
	Role string `json:"role,omitempty"`
	UID  string `json:"uid,omitempty"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Codec issues and verifies HS256 bearer tokens.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewCodec(secret string, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if len(secret) < minSecretBytes {
		return nil, ErrWeakSecret
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}

	return &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock swaps the time source. Tests only.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// IssueAccess returns a signed access token and its lifetime in seconds.
func (c *Codec) IssueAccess(p Principal) (string, int64, error) {
	now := c.now().UTC()
	claims := Claims{
		Role: string(p.Role),
		UID:  p.ID,
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
			ID:        uuid.NewString(),
		},
	}

	encoded, err := c.sign(claims)
	if err != nil {
		return "", 0, err
	}
	return encoded, int64(c.accessTTL.Seconds()), nil
}

// IssueRefresh returns a signed refresh token and its expiry. The jti keeps
// tokens issued within the same second distinct.
func (c *Codec) IssueRefresh(p Principal) (string, time.Time, error) {
	now := c.now().UTC()
	expiresAt := now.Add(c.refreshTTL)
	claims := Claims{
		Type: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	encoded, err := c.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return encoded, expiresAt.Truncate(time.Second), nil
}

func (c *Codec) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)

	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	switch {
	case err == nil && parsed.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

// RemainingValidity is the time until the token expires, or zero when it
// cannot be verified.
func (c *Codec) RemainingValidity(token string) time.Duration {
	claims, err := c.Verify(token)
	if err != nil || claims.ExpiresAt == nil {
		return 0
	}

	remaining := claims.ExpiresAt.Time.Sub(c.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *Codec) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return encoded, nil
}
