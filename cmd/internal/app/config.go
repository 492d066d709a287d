package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"MART_HTTP_ADDR, default=0.0.0.0:8080"`
	LogLevel  string `env:"MART_LOG_LEVEL, default=info"`
	LogFormat string `env:"MART_LOG_FORMAT, default=json"`

	ReadHeaderTimeout time.Duration `env:"MART_HTTP_READ_HEADER_TIMEOUT, default=5s"`
	ReadTimeout       time.Duration `env:"MART_HTTP_READ_TIMEOUT, default=15s"`
	WriteTimeout      time.Duration `env:"MART_HTTP_WRITE_TIMEOUT, default=15s"`
	IdleTimeout       time.Duration `env:"MART_HTTP_IDLE_TIMEOUT, default=60s"`
	MaxHeaderBytes    int           `env:"MART_HTTP_MAX_HEADER_BYTES, default=1048576"`

	DatabaseURL string `env:"MART_DATABASE_URL"`
	DBMaxConns  int32  `env:"MART_DB_MAX_CONNS, default=10"`
	DBMinConns  int32  `env:"MART_DB_MIN_CONNS, default=0"`

	// DBMigrate applies embedded goose migrations before serving.
	DBMigrate bool `env:"MART_DB_MIGRATE, default=false"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `env:"MART_READINESS_REQUIRE_DB, default=false"`

	// If true, MART_TOKEN_HMAC_KEY must be set (>= 32 bytes) and refresh
	// tokens are hashed with HMAC-SHA256.
	RequireTokenHMAC bool `env:"MART_REQUIRE_TOKEN_HMAC, default=false"`

	CORSAllowedOrigins   []string `env:"MART_CORS_ALLOWED_ORIGINS"`
	CORSAllowCredentials bool     `env:"MART_CORS_ALLOW_CREDENTIALS, default=true"`
	CORSMaxAgeSeconds    int      `env:"MART_CORS_MAX_AGE_SECONDS, default=600"`
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("app: config: %w", err)
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("app: config: MART_DB_MIN_CONNS (%d) exceeds MART_DB_MAX_CONNS (%d)", cfg.DBMinConns, cfg.DBMaxConns)
	}
	return cfg, nil
}
