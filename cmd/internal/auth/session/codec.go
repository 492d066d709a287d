package session

import (
	"fmt"
	"time"

	"campusmart/cmd/identity"
	"campusmart/cmd/security/token"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the identity envelope carried by access tokens.
type AccessClaims struct {
	UserID    string
	Role      identity.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Codec mints and verifies tokens. It performs no I/O.
type Codec struct {
	issuer       string
	secret       []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	refreshBytes int
	clockSkew    time.Duration
	hasher       token.Hasher
}

// NewCodec validates cfg and builds a Codec.
// A missing or short signing secret returns ErrConfig; callers treat that as fatal at startup.
func NewCodec(cfg Config, hasher token.Hasher) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Codec{
		issuer:       cfg.Issuer,
		secret:       []byte(cfg.JWTSecret),
		accessTTL:    cfg.AccessTokenTTL,
		refreshTTL:   cfg.RefreshTokenTTL(),
		refreshBytes: cfg.RefreshTokenBytes,
		clockSkew:    cfg.ClockSkew,
		hasher:       hasher,
	}, nil
}

// CreateAccessToken signs an HS256 token for userID and role, expiring AccessTokenTTL after now.
func (c *Codec) CreateAccessToken(userID string, role identity.Role, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.accessTTL)
	claims := jwtClaims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// VerifyAccessToken checks signature, algorithm, issuer and expiry as of now.
// Every failure is reported as ErrInvalidToken.
func (c *Codec) VerifyAccessToken(raw string, now time.Time) (AccessClaims, error) {
	var claims jwtClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || claims.UserID == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{
		UserID: claims.UserID,
		Role:   identity.ParseRole(claims.Role),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// CreateRefreshToken returns a fresh opaque refresh secret.
func (c *Codec) CreateRefreshToken() (string, error) {
	return token.NewOpaqueToken(c.refreshBytes)
}

// HashRefreshToken returns the storage key for a refresh secret.
func (c *Codec) HashRefreshToken(secret string) string {
	return c.hasher.Hash(secret)
}

// RefreshTokenExpiry returns the absolute expiry of a refresh token issued at now.
func (c *Codec) RefreshTokenExpiry(now time.Time) time.Time {
	return now.Add(c.refreshTTL)
}

// newRecord mints a refresh secret and the record that stores it.
func (c *Codec) newRecord(now time.Time) (string, RefreshTokenRecord, error) {
	secret, err := c.CreateRefreshToken()
	if err != nil {
		return "", RefreshTokenRecord{}, err
	}
	return secret, RefreshTokenRecord{
		TokenHash: c.HashRefreshToken(secret),
		ExpiresAt: c.RefreshTokenExpiry(now),
		CreatedAt: now,
	}, nil
}
