package session

import (
	"errors"
	"testing"
	"time"

	"campusmart/cmd/identity"
	"campusmart/cmd/security/token"

	"github.com/golang-jwt/jwt/v5"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWTSecret = testSecret
	return cfg
}

func mustCodec(t *testing.T, cfg Config) *Codec {
	t.Helper()
	c, err := NewCodec(cfg, token.Hasher{})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestNewCodec_MissingSecret(t *testing.T) {
	t.Parallel()

	_, err := NewCodec(DefaultConfig(), token.Hasher{})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	c := mustCodec(t, testConfig())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tok, exp, err := c.CreateAccessToken("01HZUSER", identity.RoleAdmin, now)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if want := now.Add(7 * 24 * time.Hour); !exp.Equal(want) {
		t.Fatalf("exp=%v want=%v", exp, want)
	}

	claims, err := c.VerifyAccessToken(tok, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.UserID != "01HZUSER" || claims.Role != identity.RoleAdmin {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("claims exp=%v want=%v", claims.ExpiresAt, exp)
	}
}

func TestAccessToken_Rejections(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	c := mustCodec(t, cfg)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tok, _, err := c.CreateAccessToken("01HZUSER", identity.RoleUser, now)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	otherCfg := testConfig()
	otherCfg.JWTSecret = "another-signing-secret-0123456789abcdef"
	other := mustCodec(t, otherCfg)

	issuerCfg := testConfig()
	issuerCfg.Issuer = "someone-else"
	foreignIssuer := mustCodec(t, issuerCfg)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwtClaims{
		UserID: "01HZUSER",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	cases := []struct {
		name  string
		codec *Codec
		tok   string
		at    time.Time
	}{
		{name: "expired", codec: c, tok: tok, at: now.Add(8 * 24 * time.Hour)},
		{name: "wrong secret", codec: other, tok: tok, at: now},
		{name: "wrong issuer", codec: foreignIssuer, tok: tok, at: now},
		{name: "alg none", codec: c, tok: none, at: now},
		{name: "garbage", codec: c, tok: "not.a.jwt", at: now},
	}
	for _, tc := range cases {
		if _, err := tc.codec.VerifyAccessToken(tc.tok, tc.at); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", tc.name, err)
		}
	}
}

func TestRefreshToken_UniqueAndHashed(t *testing.T) {
	t.Parallel()

	c := mustCodec(t, testConfig())

	a, err := c.CreateRefreshToken()
	if err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}
	b, err := c.CreateRefreshToken()
	if err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}
	if a == b {
		t.Fatalf("refresh tokens must not repeat")
	}
	if len(a) < 43 {
		t.Fatalf("refresh token too short for 256 bits: %d chars", len(a))
	}

	if c.HashRefreshToken(a) != c.HashRefreshToken(a) {
		t.Fatalf("hash must be deterministic")
	}
	if c.HashRefreshToken(a) == c.HashRefreshToken(b) || c.HashRefreshToken(a) == a {
		t.Fatalf("hash must be one-way and distinct per secret")
	}

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := c.RefreshTokenExpiry(now); !got.Equal(now.AddDate(0, 0, 30)) {
		t.Fatalf("expiry=%v", got)
	}
}
