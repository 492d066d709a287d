package guard

import (
	"context"
	"io"
	"net/http"
	"strings"
)

type retriedKey struct{}

// Transport attaches the guard's access token and replays a request once
// after a 401 and a successful refresh.
type Transport struct {
	Guard *Guard
	Base  http.RoundTripper

	// RefreshPath marks requests that are never retried. Defaults to DefaultRefreshPath.
	RefreshPath string
}

// Client returns an http.Client whose requests go through a Transport over base.
func (g *Guard) Client(base http.RoundTripper) *http.Client {
	return &http.Client{Transport: &Transport{Guard: g, Base: base}}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	access := t.Guard.AccessToken()

	first := req.Clone(req.Context())
	if access != "" {
		first.Header.Set("Authorization", "Bearer "+access)
	}
	resp, err := t.base().RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if t.isRefreshRequest(req) || alreadyRetried(req) || !replayable(req) {
		return resp, nil
	}

	fresh, err := t.Guard.EnsureValidToken(req.Context(), access)
	if err != nil {
		return resp, nil
	}

	ctx := context.WithValue(req.Context(), retriedKey{}, true)
	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+fresh)

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return t.base().RoundTrip(retry)
}

func (t *Transport) isRefreshRequest(req *http.Request) bool {
	path := t.RefreshPath
	if path == "" {
		path = DefaultRefreshPath
	}
	return strings.HasSuffix(strings.TrimRight(req.URL.Path, "/"), path)
}

func alreadyRetried(req *http.Request) bool {
	v, _ := req.Context().Value(retriedKey{}).(bool)
	return v
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}
