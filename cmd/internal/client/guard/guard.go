package guard

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// Refresher exchanges a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// Guard owns a client's tokens and its single in-flight refresh.
type Guard struct {
	tokens    TokenStore
	refresher Refresher
	flight    singleflight.Group

	metrics *Metrics
	log     *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithMetrics enables refresh counters.
func WithMetrics(m *Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// WithLogger sets the guard logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Guard) {
		if log != nil {
			g.log = log
		}
	}
}

// New creates a Guard. A nil store gets an empty MemoryTokenStore.
func New(tokens TokenStore, refresher Refresher, opts ...Option) *Guard {
	if tokens == nil {
		tokens = NewMemoryTokenStore(Tokens{})
	}
	g := &Guard{
		tokens:    tokens,
		refresher: refresher,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// AccessToken returns the held access token, or "".
func (g *Guard) AccessToken() string {
	return g.tokens.Load().Access
}

// SetTokens stores a pair obtained from login or register.
func (g *Guard) SetTokens(t Tokens) {
	g.tokens.Save(t)
}

// ClearTokens drops the held pair.
func (g *Guard) ClearTokens() {
	g.tokens.Clear()
}

// EnsureValidToken returns an access token newer than stale.
//
// If the held token already differs from stale another caller has refreshed
// and the held token is returned. Otherwise the caller joins the in-flight
// refresh or starts one; every waiter sees the same outcome. The exchange is
// detached from ctx: a caller whose ctx ends stops waiting with ctx.Err()
// while the exchange runs on for the others. Any failed exchange clears the
// held tokens.
func (g *Guard) EnsureValidToken(ctx context.Context, stale string) (string, error) {
	if cur := g.tokens.Load().Access; cur != "" && cur != stale {
		return cur, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(refreshKey, func() (any, error) {
		return g.refresh(detached, stale)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			g.metrics.observeShared()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (g *Guard) refresh(ctx context.Context, stale string) (string, error) {
	held := g.tokens.Load()
	// A flight that finished between the caller's check and DoChan already rotated.
	if held.Access != "" && held.Access != stale {
		return held.Access, nil
	}

	if held.Refresh == "" || g.refresher == nil {
		g.tokens.Clear()
		g.metrics.observeRefresh(ErrNoRefreshToken)
		return "", ErrNoRefreshToken
	}

	next, err := g.refresher.Refresh(ctx, held.Refresh)
	g.metrics.observeRefresh(err)
	if err != nil {
		// The held refresh token is never presented twice after a failure.
		g.tokens.Clear()
		if IsTerminal(err) {
			g.log.Info("client.refresh.rejected", "err", err)
		} else {
			g.log.Warn("client.refresh.fail", "err", err)
		}
		return "", err
	}

	g.tokens.Save(next)
	return next.Access, nil
}
