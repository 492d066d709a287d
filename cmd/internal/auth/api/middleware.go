package authapi

import (
	"context"
	"net/http"

	"campusmart/cmd/identity"
	"campusmart/cmd/internal/auth/session"
)

type claimsKey struct{}

// ClaimsFromContext returns the access claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) (session.AccessClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(session.AccessClaims)
	return c, ok
}

// RequireAuth rejects requests without a valid bearer access token.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
			return
		}
		claims, err := h.sessions.ValidateAccessToken(raw, h.now())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCapability must run after RequireAuth.
func RequireCapability(c identity.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
				return
			}
			if !claims.Role.Can(c) {
				writeError(w, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
