// Package authapi serves the /auth HTTP endpoints on top of the session service.
package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"campusmart/cmd/identity"
	"campusmart/cmd/internal/auth/session"
	"campusmart/cmd/security/password"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions *session.Service
	now      func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithClock overrides time.Now for token issuance and validation.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Routes returns the /auth sub-router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit())
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/refresh-token", h.handleRefresh)
	})
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/me", h.handleMe)
		r.Post("/logout-all", h.handleLogoutAll)
		r.With(RequireCapability(identity.CapabilityAdmin)).Get("/users/{id}", h.handleUserByID)
	})
	return r
}

func (h *Handler) rateLimit() func(http.Handler) http.Handler {
	if h.cfg.RateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	keyIP := httprate.KeyByIP
	if h.cfg.TrustProxy {
		keyIP = httprate.KeyByRealIP
	}
	return httprate.Limit(
		h.cfg.RateLimit,
		h.cfg.RateWindow,
		httprate.WithKeyFuncs(keyIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			h.audit(r, "rate_limited", "", "path", r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests, try again later")
		}),
	)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	res, err := h.sessions.Register(r.Context(), h.now(), session.RegisterInput{
		FullName:   req.FullName,
		Email:      req.Email,
		Password:   req.Password,
		Phone:      req.Phone,
		CampusRole: req.CampusRole,
		Username:   req.Username,
	})
	if err != nil {
		if errors.Is(err, session.ErrDuplicateAccount) {
			h.audit(r, "register_duplicate", "")
		}
		h.writeServiceError(w, "auth.register.fail", err)
		return
	}

	h.audit(r, "register", res.User.ID)
	writeJSON(w, http.StatusCreated, toTokenResponse("Registration successful", res))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	res, err := h.sessions.Login(r.Context(), h.now(), identifier, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			h.audit(r, "login_failed", "")
		}
		h.writeServiceError(w, "auth.login.fail", err)
		return
	}

	h.audit(r, "login", res.User.ID)
	writeJSON(w, http.StatusOK, toTokenResponse("Login successful", res))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	res, err := h.sessions.Refresh(r.Context(), h.now(), req.RefreshToken)
	if err != nil {
		if session.IsTerminalRefreshError(err) {
			h.audit(r, "refresh_rejected", "", "reason", err.Error())
		}
		h.writeServiceError(w, "auth.refresh.fail", err)
		return
	}

	h.audit(r, "refresh", res.User.ID)
	writeJSON(w, http.StatusOK, toTokenResponse("Token refreshed", res))
}

// handleLogout always answers 200; failures are logged only.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			h.log.Debug("auth.logout.body_ignored", "err", err)
		}
	}

	if err := h.sessions.Logout(r.Context(), h.now(), req.RefreshToken); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
	}

	h.audit(r, "logout", "")
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	if err := h.sessions.LogoutAll(r.Context(), claims.UserID); err != nil {
		h.log.Error("auth.logout_all.fail", "user_id", claims.UserID, "err", err)
	}

	h.audit(r, "logout_all", claims.UserID)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out of all sessions"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	u, err := h.sessions.User(r.Context(), claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: u})
}

// handleUserByID lets admins look up any account.
func (h *Handler) handleUserByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	u, err := h.sessions.User(r.Context(), id)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.log.Error("auth.user_lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	claims, _ := ClaimsFromContext(r.Context())
	h.audit(r, "admin_user_lookup", claims.UserID, "target_user_id", u.ID)
	writeJSON(w, http.StatusOK, meResponse{User: u})
}

// writeServiceError maps session service errors to status and code.
func (h *Handler) writeServiceError(w http.ResponseWriter, event string, err error) {
	var opErr identity.OpError
	switch {
	case errors.Is(err, session.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, "duplicate_account", "An account with this email already exists")
	case errors.Is(err, session.ErrUsernameUnavailable):
		writeError(w, http.StatusConflict, "username_unavailable", "Could not allocate a username, choose another")
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
	case errors.Is(err, session.ErrRefreshTokenExpired):
		writeError(w, http.StatusUnauthorized, "refresh_token_expired", "Refresh token expired")
	case errors.Is(err, session.ErrInvalidRefreshToken):
		writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "Invalid refresh token")
	case password.IsPolicyViolation(err):
		writeError(w, http.StatusBadRequest, "weak_password", err.Error())
	case errors.As(err, &opErr) && errors.Is(opErr.Kind, identity.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", opErr.Msg)
	default:
		h.log.Error(event, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func toTokenResponse(msg string, res session.Result) tokenResponse {
	return tokenResponse{
		Message:      msg,
		Token:        res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         res.User,
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
