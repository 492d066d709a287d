package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultRefreshPath is the server's refresh endpoint.
const DefaultRefreshPath = "/auth/refresh-token"

const maxRefreshResponseBytes = 1 << 20

// HTTPRefresher calls the refresh endpoint.
type HTTPRefresher struct {
	baseURL string
	path    string
	client  *http.Client
}

// NewHTTPRefresher targets baseURL + DefaultRefreshPath. client must not be
// wrapped by a guard Transport; nil uses a client with a 15s timeout.
func NewHTTPRefresher(baseURL string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPRefresher{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    DefaultRefreshPath,
		client:  client,
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type errorEnvelope struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

// Refresh posts {refreshToken} and decodes {token, refreshToken}.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return Tokens{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+r.path, bytes.NewReader(body))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Tokens{}, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	limited := io.LimitReader(resp.Body, maxRefreshResponseBytes)
	if resp.StatusCode != http.StatusOK {
		var env errorEnvelope
		_ = json.NewDecoder(limited).Decode(&env)
		return Tokens{}, &StatusError{StatusCode: resp.StatusCode, Code: env.Error.Code}
	}

	var out refreshResponse
	if err := json.NewDecoder(limited).Decode(&out); err != nil {
		return Tokens{}, err
	}
	if out.Token == "" || out.RefreshToken == "" {
		return Tokens{}, errors.New("guard: refresh response missing tokens")
	}
	return Tokens{Access: out.Token, Refresh: out.RefreshToken}, nil
}
