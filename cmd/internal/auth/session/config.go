package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// MinJWTSecretBytes is the minimum HS256 signing secret length.
const MinJWTSecretBytes = 32

// Config defines runtime configuration for token issuance and session storage.
type Config struct {
	// Issuer is the "iss" claim of access tokens.
	Issuer string `env:"MART_AUTH_ISSUER, overwrite"`

	// JWTSecret signs access tokens. Required.
	JWTSecret string `env:"MART_JWT_SECRET, overwrite"`

	// AccessTokenTTL is the access-token lifetime.
	AccessTokenTTL time.Duration `env:"MART_AUTH_ACCESS_TTL, overwrite"`

	// RefreshTokenTTLDays is the refresh-token lifetime in days.
	RefreshTokenTTLDays int `env:"MART_AUTH_REFRESH_TTL_DAYS, overwrite"`

	// MaxRefreshTokensPerUser caps each user's live session collection.
	MaxRefreshTokensPerUser int `env:"MART_AUTH_MAX_REFRESH_TOKENS, overwrite"`

	// RefreshTokenBytes is the entropy of new refresh tokens.
	RefreshTokenBytes int `env:"MART_AUTH_REFRESH_TOKEN_BYTES, overwrite"`

	// MaxUsernameAttempts bounds the numeric-suffix search during registration.
	MaxUsernameAttempts int `env:"MART_AUTH_MAX_USERNAME_ATTEMPTS, overwrite"`

	// ClockSkew is the leeway applied when verifying access-token time claims.
	ClockSkew time.Duration `env:"MART_AUTH_CLOCK_SKEW, overwrite"`
}

// DefaultConfig returns the defaults. JWTSecret is left empty on purpose.
func DefaultConfig() Config {
	return Config{
		Issuer:                  "campusmart",
		AccessTokenTTL:          7 * 24 * time.Hour,
		RefreshTokenTTLDays:     30,
		MaxRefreshTokensPerUser: 5,
		RefreshTokenBytes:       32,
		MaxUsernameAttempts:     100,
		ClockSkew:               30 * time.Second,
	}
}

// RefreshTokenTTL returns the refresh-token lifetime as a duration.
func (c Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLDays) * 24 * time.Hour
}

// LoadConfigFromEnv overlays MART_* variables on DefaultConfig.
//
// Required:
//   - MART_JWT_SECRET (at least 32 bytes)
//
// Optional:
//   - MART_AUTH_ISSUER
//   - MART_AUTH_ACCESS_TTL, MART_AUTH_CLOCK_SKEW (Go durations)
//   - MART_AUTH_REFRESH_TTL_DAYS
//   - MART_AUTH_MAX_REFRESH_TOKENS
//   - MART_AUTH_REFRESH_TOKEN_BYTES (32..64)
//   - MART_AUTH_MAX_USERNAME_ATTEMPTS
//
// Any failure wraps ErrConfig.
func LoadConfigFromEnv(ctx context.Context) (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants. Every failure wraps ErrConfig.
func (c Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return fmt.Errorf("%w: MART_JWT_SECRET is required", ErrConfig)
	case len(c.JWTSecret) < MinJWTSecretBytes:
		return fmt.Errorf("%w: MART_JWT_SECRET must be at least %d bytes", ErrConfig, MinJWTSecretBytes)
	case c.AccessTokenTTL <= 0:
		return fmt.Errorf("%w: access token ttl must be positive", ErrConfig)
	case c.RefreshTokenTTLDays <= 0:
		return fmt.Errorf("%w: refresh token ttl must be positive", ErrConfig)
	case c.MaxRefreshTokensPerUser <= 0:
		return fmt.Errorf("%w: max refresh tokens must be positive", ErrConfig)
	case c.RefreshTokenBytes < 32 || c.RefreshTokenBytes > 64:
		return fmt.Errorf("%w: refresh token bytes must be within [32..64]", ErrConfig)
	case c.MaxUsernameAttempts <= 0:
		return fmt.Errorf("%w: max username attempts must be positive", ErrConfig)
	case c.ClockSkew < 0:
		return fmt.Errorf("%w: clock skew must not be negative", ErrConfig)
	}
	return nil
}
