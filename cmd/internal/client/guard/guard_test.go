package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	next    Tokens
	err     error
}

func newFakeRefresher(next Tokens, err error) *fakeRefresher {
	return &fakeRefresher{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
		next:    next,
		err:     err,
	}
}

func (f *fakeRefresher) Refresh(ctx context.Context, _ string) (Tokens, error) {
	f.calls.Add(1)
	f.started <- struct{}{}
	select {
	case <-f.release:
	case <-ctx.Done():
		return Tokens{}, ctx.Err()
	}
	if f.err != nil {
		return Tokens{}, f.err
	}
	return f.next, nil
}

func runConcurrent(n int, fn func() (string, error)) ([]string, []error) {
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = fn()
		}(i)
	}
	wg.Wait()
	return tokens, errs
}

func TestEnsureValidToken_CoalescesConcurrentCallers(t *testing.T) {
	t.Parallel()

	store := NewMemoryTokenStore(Tokens{Access: "old", Refresh: "r1"})
	ref := newFakeRefresher(Tokens{Access: "new", Refresh: "r2"}, nil)
	reg := prometheus.NewRegistry()
	g := New(store, ref, WithMetrics(NewMetrics(reg)))

	go func() {
		<-ref.started
		time.Sleep(20 * time.Millisecond)
		close(ref.release)
	}()

	tokens, errs := runConcurrent(5, func() (string, error) {
		return g.EnsureValidToken(context.Background(), "old")
	})

	for i := range tokens {
		require.NoError(t, errs[i])
		assert.Equal(t, "new", tokens[i])
	}
	assert.EqualValues(t, 1, ref.calls.Load())
	assert.Equal(t, Tokens{Access: "new", Refresh: "r2"}, store.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.refresh.WithLabelValues("success")))
}

func TestEnsureValidToken_AlreadyRefreshed(t *testing.T) {
	t.Parallel()

	ref := newFakeRefresher(Tokens{}, nil)
	g := New(NewMemoryTokenStore(Tokens{Access: "new", Refresh: "r2"}), ref)

	got, err := g.EnsureValidToken(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
	assert.Zero(t, ref.calls.Load())
}

func TestEnsureValidToken_RejectedFailsAllAndClears(t *testing.T) {
	t.Parallel()

	store := NewMemoryTokenStore(Tokens{Access: "old", Refresh: "r1"})
	ref := newFakeRefresher(Tokens{}, &StatusError{StatusCode: 401, Code: "invalid_refresh_token"})
	g := New(store, ref)

	go func() {
		<-ref.started
		time.Sleep(20 * time.Millisecond)
		close(ref.release)
	}()

	tokens, errs := runConcurrent(5, func() (string, error) {
		return g.EnsureValidToken(context.Background(), "old")
	})

	for i := range errs {
		require.Error(t, errs[i])
		assert.True(t, IsTerminal(errs[i]), "error %v should be terminal", errs[i])
		assert.Empty(t, tokens[i])
	}
	assert.EqualValues(t, 1, ref.calls.Load())
	assert.Equal(t, Tokens{}, store.Load())
}

func TestEnsureValidToken_NoRefreshToken(t *testing.T) {
	t.Parallel()

	store := NewMemoryTokenStore(Tokens{Access: "old"})
	ref := newFakeRefresher(Tokens{}, nil)
	g := New(store, ref)

	_, err := g.EnsureValidToken(context.Background(), "old")
	require.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Zero(t, ref.calls.Load())
	assert.Equal(t, Tokens{}, store.Load())
}

func TestEnsureValidToken_OutageClearsTokens(t *testing.T) {
	t.Parallel()

	store := NewMemoryTokenStore(Tokens{Access: "old", Refresh: "r1"})
	ref := newFakeRefresher(Tokens{}, &StatusError{StatusCode: 503})
	close(ref.release)
	g := New(store, ref)

	_, err := g.EnsureValidToken(context.Background(), "old")
	require.Error(t, err)
	assert.False(t, IsTerminal(err))
	assert.Equal(t, Tokens{}, store.Load())

	_, err = g.EnsureValidToken(context.Background(), "")
	require.ErrorIs(t, err, ErrNoRefreshToken)
	assert.EqualValues(t, 1, ref.calls.Load())
}

func TestEnsureValidToken_CallerCancelDoesNotCancelRefresh(t *testing.T) {
	t.Parallel()

	store := NewMemoryTokenStore(Tokens{Access: "old", Refresh: "r1"})
	ref := newFakeRefresher(Tokens{Access: "new", Refresh: "r2"}, nil)
	g := New(store, ref)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.EnsureValidToken(ctx, "old")
		done <- err
	}()

	<-ref.started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// A second caller joins the still-running exchange.
	second := make(chan string, 1)
	go func() {
		tok, _ := g.EnsureValidToken(context.Background(), "old")
		second <- tok
	}()
	close(ref.release)

	assert.Equal(t, "new", <-second)
	assert.EqualValues(t, 1, ref.calls.Load())
	assert.Equal(t, "new", store.Load().Access)
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{ErrNoRefreshToken, true},
		{&StatusError{StatusCode: 401}, true},
		{&StatusError{StatusCode: 400, Code: "invalid_request"}, true},
		{&StatusError{StatusCode: 500}, false},
		{errors.New("dial tcp: connection refused"), false},
		{context.DeadlineExceeded, false},
	}
	for _, tc := range tests {
		if got := IsTerminal(tc.err); got != tc.want {
			t.Fatalf("IsTerminal(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
