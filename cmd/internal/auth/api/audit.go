package authapi

import (
	"net/http"
	"strings"
)

// audit writes one structured "auth.audit" line per security-relevant outcome.
func (h *Handler) audit(r *http.Request, action, userID string, attrs ...any) {
	ip := ""
	if addr := clientIP(r, h.cfg.TrustProxy); addr != nil {
		ip = addr.String()
	}

	args := append([]any{
		"action", action,
		"user_id", userID,
		"ip", ip,
		"user_agent", strings.TrimSpace(r.UserAgent()),
	}, attrs...)
	h.log.InfoContext(r.Context(), "auth.audit", args...)
}
