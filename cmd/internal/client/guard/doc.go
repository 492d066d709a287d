// Package guard keeps an API client's access token valid.
//
// A Guard holds the client's token pair and coalesces concurrent refresh
// attempts into one in-flight exchange. Transport wraps an http.RoundTripper:
// it attaches the bearer token, and on 401 refreshes through the Guard and
// replays the request once.
//
// The Guard never redirects or prompts. When a refresh fails for any reason
// the held tokens are cleared and the original 401 is returned to the caller.
package guard
