package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kinds carried in the "token_type" claim.
const (
	AccessToken  = "access"
	RefreshToken = "refresh"
)

// Claims is the payload of access and refresh tokens.
type Claims struct {
	TokenType string `json:"token_type"`
	UserID    int    `json:"user_id"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 tokens.
type Signer struct {
	issuer string
	secret []byte
	now    func() time.Time
}

// NewSigner returns a signer for the given issuer and shared secret.
func NewSigner(issuer string, secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: secret is required", ErrInvalidInput)
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required", ErrInvalidInput)
	}
	return &Signer{issuer: issuer, secret: secret, now: time.Now}, nil
}

// Issue signs a token of the given kind for a user.
func (s *Signer) Issue(kind string, userID int, email string, ttl time.Duration) (string, time.Time, error) {
	if kind != AccessToken && kind != RefreshToken {
		return "", time.Time{}, fmt.Errorf("%w: unknown token type %q", ErrInvalidInput, kind)
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}
	now := s.now().UTC()
	expires := now.Add(ttl)
	claims := Claims{
		TokenType: kind,
		UserID:    userID,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies the signature, issuer, expiry and token kind.
func (s *Signer) Parse(token, kind string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != kind {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, kind)
	}
	return claims, nil
}

// AccessClaims decodes a token without verifying its signature. The client
// only holds the access cookie to report who is signed in and until when.
func AccessClaims(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// ExpiresIn returns the time left before the claims expire, or 0.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c == nil || c.ExpiresAt == nil {
		return 0
	}
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
