// Package main provides a CI-friendly smoke test for campusmart auth.
//
// It validates:
//   - register returns a token pair
//   - N concurrent 401s through the session guard trigger one refresh exchange
//   - the rotated-out refresh token is rejected
//   - logout succeeds and revokes the current refresh token
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"campusmart/cmd/internal/client/guard"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type registerResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// countingRefresher counts exchanges that actually reach the server.
type countingRefresher struct {
	next  guard.Refresher
	calls atomic.Int32
}

func (c *countingRefresher) Refresh(ctx context.Context, refreshToken string) (guard.Tokens, error) {
	c.calls.Add(1)
	return c.next.Refresh(ctx, refreshToken)
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		n       = flag.Int("n", 5, "Concurrent requests issued with a stale access token")
		timeout = flag.Duration("timeout", 10*time.Second, "Overall timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if *n < 2 {
		fatalf("-n must be at least 2")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	base := strings.TrimRight(*baseURL, "/")
	httpClient := &http.Client{Timeout: *timeout}

	reg := mustRegister(ctx, httpClient, base)
	if *verbose {
		fmt.Printf("registered: user_id=%s email=%s\n", reg.User.ID, reg.User.Email)
	}

	refresher := &countingRefresher{next: guard.NewHTTPRefresher(base, httpClient)}
	tokens := guard.NewMemoryTokenStore(guard.Tokens{Access: "stale-access-token", Refresh: reg.RefreshToken})
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	registry := prometheus.NewRegistry()
	g := guard.New(tokens, refresher, guard.WithMetrics(guard.NewMetrics(registry)), guard.WithLogger(log))
	client := g.Client(http.DefaultTransport)

	statuses := fireConcurrent(ctx, client, base+"/auth/me", *n)
	for i, s := range statuses {
		if s != http.StatusOK {
			fatalf("request %d: status %d, want 200", i, s)
		}
	}
	if got := refresher.calls.Load(); got != 1 {
		fatalf("coalescing: %d refresh exchanges for %d concurrent 401s, want 1", got, *n)
	}
	if got := counterValue(registry, "campusmart_client_refresh_total", "success"); got != 1 {
		fatalf("campusmart_client_refresh_total{result=success} = %v, want 1", got)
	}
	rotated := tokens.Load()
	if rotated.Refresh == reg.RefreshToken {
		fatalf("refresh token was not rotated")
	}
	if *verbose {
		fmt.Printf("coalesced %d requests into 1 refresh\n", *n)
	}

	_, err := guard.NewHTTPRefresher(base, httpClient).Refresh(ctx, reg.RefreshToken)
	var se *guard.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		fatalf("reuse of rotated refresh token: got %v, want 401", err)
	}

	mustLogout(ctx, httpClient, base, rotated.Refresh)
	_, err = guard.NewHTTPRefresher(base, httpClient).Refresh(ctx, rotated.Refresh)
	if !guard.IsTerminal(err) {
		fatalf("refresh after logout: got %v, want rejection", err)
	}

	fmt.Printf("OK: user_id=%s concurrent=%d refresh_calls=%d waiters=%v\n",
		reg.User.ID, *n, refresher.calls.Load(), counterValue(registry, "campusmart_client_refresh_waiters_total", ""))
}

func mustRegister(ctx context.Context, c *http.Client, base string) registerResponse {
	email := fmt.Sprintf("smoke-%d@smoke.campusmart.test", time.Now().UnixNano())
	body := map[string]string{
		"fullName": "Smoke Test",
		"email":    email,
		"password": "smoke test password 2024",
		"phone":    "+2348000000000",
	}

	var out registerResponse
	status := mustPostJSON(ctx, c, base+"/auth/register", body, &out)
	if status != http.StatusCreated {
		fatalf("register: status %d, want 201", status)
	}
	if out.Token == "" || out.RefreshToken == "" {
		fatalf("register: missing tokens")
	}
	return out
}

func mustLogout(ctx context.Context, c *http.Client, base, refreshToken string) {
	status := mustPostJSON(ctx, c, base+"/auth/logout", map[string]string{"refreshToken": refreshToken}, nil)
	if status != http.StatusOK {
		fatalf("logout: status %d, want 200", status)
	}
}

func fireConcurrent(ctx context.Context, c *http.Client, target string, n int) []int {
	statuses := make([]int, n)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return
			}
			resp, err := c.Do(req)
			if err != nil {
				fmt.Fprintf(os.Stderr, "request %d: %v\n", i, err)
				return
			}
			_ = resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	close(start)
	wg.Wait()
	return statuses
}

func mustPostJSON(ctx context.Context, c *http.Client, target string, in, out any) int {
	raw, err := json.Marshal(in)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		fatalf("POST %s: %v", target, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fatalf("decode %s: %v", target, err)
		}
	}
	return resp.StatusCode
}

// counterValue sums the counter samples of family name, restricted to
// result when it is non-empty.
func counterValue(g prometheus.Gatherer, name, result string) float64 {
	families, err := g.Gather()
	if err != nil {
		fatalf("gather metrics: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if result != "" && !hasLabel(m.GetLabel(), "result", result) {
				continue
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func hasLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, l := range labels {
		if l.GetName() == name && l.GetValue() == value {
			return true
		}
	}
	return false
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
