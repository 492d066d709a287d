// Package app wires the campusmart server runtime: config, logging, storage,
// metrics and HTTP routes.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	authapi "campusmart/cmd/internal/auth/api"
	"campusmart/cmd/internal/auth/session"
	"campusmart/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Store is a small app-level lifecycle abstraction for DB-backed resources.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the campusmart server runtime.
type App struct {
	cfg Config
	log Logger

	store     Store
	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry
	sessions *session.Service
	auth     *authapi.Handler
}

// New constructs a fully wired App from cfg. Auth, session and password
// settings are read from their own MART_* variables.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sessCfg, err := session.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	hasher, err := loadTokenHasher(cfg)
	if err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg, sessCfg, hasher); err != nil {
		return nil, err
	}
	passwords, err := password.FromEnv(ctx)
	if err != nil {
		return nil, err
	}
	authCfg, err := authapi.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	codec, err := session.NewCodec(sessCfg, hasher)
	if err != nil {
		return nil, err
	}

	st, sessStore, dbPool, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := session.NewService(sessCfg, sessStore, codec, passwords,
		session.WithMetrics(session.NewMetrics(reg)),
		session.WithLogger(log),
	)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	authHandler, err := authapi.NewHandler(log, authCfg, svc)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	log.Info("auth.config",
		"issuer", sessCfg.Issuer,
		"access_ttl", sessCfg.AccessTokenTTL.String(),
		"refresh_ttl_days", sessCfg.RefreshTokenTTLDays,
		"max_sessions", sessCfg.MaxRefreshTokensPerUser,
		"token_hmac", hasher.HMAC(),
	)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbPool != nil,
		registry:  reg,
		sessions:  svc,
		auth:      authHandler,
	}, nil
}

// Handler returns the fully wired HTTP handler.
func (a *App) Handler() http.Handler {
	return a.routes()
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", runtimeBaseURL(a.cfg.HTTPAddr),
		"db_enabled", a.dbEnabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.store.Close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

// Close releases store resources without serving.
func (a *App) Close(ctx context.Context) error {
	return a.store.Close(ctx)
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore decides between Postgres-backed persistence and the in-memory dev store.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, session.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, session.NewMemoryStore(), nil, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	if cfg.DBMigrate {
		if err := session.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		log.Info("db.migrated")
	}

	log.Info("db.enabled.postgres_store")

	// The app owns the pool; PostgresStore never closes it.
	return dbStore{pool: pool}, session.NewPostgresStore(pool), pool, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
