package authapi

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config controls auth HTTP behavior.
type Config struct {
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64 `env:"MART_AUTH_MAX_BODY_BYTES, default=65536"`

	// RateLimit is the number of register/login/refresh calls allowed per client
	// IP and endpoint within RateWindow. Zero disables limiting.
	RateLimit  int           `env:"MART_AUTH_RATE_LIMIT, default=20"`
	RateWindow time.Duration `env:"MART_AUTH_RATE_WINDOW, default=1m"`

	// TrustProxy makes client IP resolution honor X-Forwarded-For / X-Real-IP.
	TrustProxy bool `env:"MART_AUTH_TRUST_PROXY, default=false"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes: 64 << 10,
		RateLimit:    20,
		RateWindow:   time.Minute,
	}
}

// LoadConfigFromEnv loads Config from MART_AUTH_* variables.
func LoadConfigFromEnv(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("authapi: %w", err)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if cfg.RateLimit > 0 && cfg.RateWindow <= 0 {
		return Config{}, fmt.Errorf("authapi: MART_AUTH_RATE_WINDOW must be positive")
	}
	return cfg, nil
}
