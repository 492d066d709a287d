package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"campusmart/cmd/identity"
	"campusmart/cmd/identity/ids"
	"campusmart/cmd/security/password"
)

// maxPresentedTokenLen bounds refresh tokens accepted from clients.
const maxPresentedTokenLen = 4096

// Service orchestrates registration, login, refresh rotation and logout.
// It is the only writer of session collections.
type Service struct {
	cfg       Config
	codec     *Codec
	store     Store
	passwords password.Config
	dummyHash string

	email   EmailSender
	metrics *Metrics
	log     *slog.Logger
}

// Option configures optional Service dependencies.
type Option func(*Service)

// WithEmailSender overrides the default no-op email sender.
func WithEmailSender(sender EmailSender) Option {
	return func(s *Service) {
		if sender != nil {
			s.email = sender
		}
	}
}

// WithMetrics enables counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService wires a Service. The dummy password hash used by Login is computed here.
func NewService(cfg Config, store Store, codec *Codec, passwords password.Config, opts ...Option) (*Service, error) {
	if store == nil || codec == nil {
		return nil, errors.New("session: nil store or codec")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dummy, err := passwords.DummyHash()
	if err != nil {
		return nil, fmt.Errorf("session: dummy hash: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		codec:     codec,
		store:     store,
		passwords: passwords,
		dummyHash: dummy,
		email:     NoopEmailSender{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	FullName   string
	Email      string
	Password   string
	Phone      string
	CampusRole string
	Username   string
}

// Result is returned by every token-issuing operation.
type Result struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             identity.PublicUser
}

// Register creates an account and its first session.
//
// Errors: identity.ErrInvalidInput, password policy errors, ErrDuplicateAccount,
// ErrUsernameUnavailable.
func (s *Service) Register(ctx context.Context, now time.Time, in RegisterInput) (Result, error) {
	const op = "session.Register"

	u, err := s.newUser(now, in)
	if err != nil {
		s.metrics.observeRegister(resultInvalidInput)
		return Result{}, err
	}

	if err := s.createWithUniqueUsername(ctx, &u, in.Username); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateAccount):
			s.metrics.observeRegister(resultDuplicate)
		default:
			s.metrics.observeRegister(resultError)
		}
		return Result{}, err
	}

	res, err := s.IssueTokens(ctx, now, u.ID)
	if err != nil {
		s.metrics.observeRegister(resultError)
		return Result{}, fmt.Errorf("%s: issue tokens: %w", op, err)
	}
	s.metrics.observeRegister(resultSuccess)

	msg := VerificationMessage{UserID: u.ID, Email: u.Email, FullName: u.FullName}
	if err := s.email.SendEmailVerification(ctx, msg); err != nil {
		s.log.Warn("auth.register.email_verification.fail", "user_id", u.ID, "err", err)
	}

	return res, nil
}

func (s *Service) newUser(now time.Time, in RegisterInput) (identity.User, error) {
	const op = "session.Register"

	fullName := strings.TrimSpace(in.FullName)
	email := identity.NormalizeEmail(in.Email)
	phone := strings.TrimSpace(in.Phone)

	switch {
	case fullName == "":
		return identity.User{}, identity.Invalid(op, "fullName is required")
	case email == "" || !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@"):
		return identity.User{}, identity.Invalid(op, "a valid email is required")
	case phone == "":
		return identity.User{}, identity.Invalid(op, "phone is required")
	}

	campusRole, ok := identity.ParseCampusRole(in.CampusRole)
	if !ok {
		return identity.User{}, identity.Invalid(op, "unknown campusRole")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return identity.User{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return identity.User{}, err
	}

	return identity.User{
		ID:           id,
		FullName:     fullName,
		Email:        email,
		Phone:        phone,
		CampusRole:   campusRole,
		Role:         identity.RoleUser,
		PasswordHash: hash,
		CreatedAt:    now,
	}, nil
}

// createWithUniqueUsername tries base, base1, base2, ... until an insert
// succeeds, at most cfg.MaxUsernameAttempts times. A taken email is reported
// before the search; the insert's conflict mapping still covers races.
func (s *Service) createWithUniqueUsername(ctx context.Context, u *identity.User, requested string) error {
	switch _, err := s.store.FindUserByLogin(ctx, u.Email, ""); {
	case err == nil:
		return ErrDuplicateAccount
	case !identity.IsNotFound(err):
		return err
	}

	base := identity.UsernameBase(requested, u.Email)

	for n := 0; n < s.cfg.MaxUsernameAttempts; n++ {
		candidate := identity.UsernameCandidate(base, n)

		taken, err := s.store.UsernameExists(ctx, candidate)
		if err != nil {
			return err
		}
		if taken {
			continue
		}

		u.Username = candidate
		err = s.store.CreateUser(ctx, *u)
		field, conflict := identity.ConflictField(err)
		switch {
		case err == nil:
			return nil
		case conflict && field == "email":
			return ErrDuplicateAccount
		case conflict && field == "username":
			// Lost a race for this candidate; try the next one.
			continue
		default:
			return err
		}
	}
	return ErrUsernameUnavailable
}

// Login authenticates by email or username and adds a new session.
// Unknown identifiers and wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, now time.Time, identifier, pw string) (Result, error) {
	email := identity.NormalizeEmail(identifier)
	username := ""
	if !strings.Contains(email, "@") {
		username = email
	}

	u, err := s.store.FindUserByLogin(ctx, email, username)
	if err != nil && !identity.IsNotFound(err) {
		s.metrics.observeLogin(resultError)
		return Result{}, err
	}

	hash := s.dummyHash
	if err == nil {
		hash = u.PasswordHash
	}
	ok, verr := s.passwords.Verify(hash, pw)
	if err != nil || verr != nil || !ok {
		if verr != nil {
			s.log.Error("auth.login.verify.fail", "user_id", u.ID, "err", verr)
		}
		s.metrics.observeLogin(resultInvalidCredentials)
		return Result{}, ErrInvalidCredentials
	}

	res, err := s.IssueTokens(ctx, now, u.ID)
	if err != nil {
		s.metrics.observeLogin(resultError)
		return Result{}, err
	}
	s.metrics.observeLogin(resultSuccess)
	return res, nil
}

// IssueTokens adds a new refresh-token record for userID, prunes the
// collection and mints an access token.
func (s *Service) IssueTokens(ctx context.Context, now time.Time, userID string) (Result, error) {
	secret, rec, err := s.codec.newRecord(now)
	if err != nil {
		return Result{}, err
	}

	var pruned int
	u, err := s.store.MutateSessions(ctx, userID, func(cur []RefreshTokenRecord) ([]RefreshTokenRecord, error) {
		next := PruneRefreshTokens(withNewest(rec, cur), now, s.cfg.MaxRefreshTokensPerUser)
		pruned = len(cur) + 1 - len(next)
		return next, nil
	})
	if err != nil {
		return Result{}, err
	}
	s.metrics.observePruned(pruned)

	return s.result(u, secret, rec, now)
}

// Refresh rotates a refresh token: the presented record is removed and a new
// one inserted under the user's lock. A token that was already rotated, never
// existed, or belongs to a deleted user yields ErrInvalidRefreshToken. An
// expired record is evicted and ErrRefreshTokenExpired returned.
func (s *Service) Refresh(ctx context.Context, now time.Time, presented string) (Result, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" || len(presented) > maxPresentedTokenLen {
		s.metrics.observeRefresh(resultInvalidToken)
		return Result{}, ErrInvalidRefreshToken
	}
	hash := s.codec.HashRefreshToken(presented)

	owner, err := s.store.FindOwnerByRefreshHash(ctx, hash)
	if err != nil {
		if identity.IsNotFound(err) {
			s.metrics.observeRefresh(resultInvalidToken)
			return Result{}, ErrInvalidRefreshToken
		}
		s.metrics.observeRefresh(resultError)
		return Result{}, err
	}

	secret, rec, err := s.codec.newRecord(now)
	if err != nil {
		s.metrics.observeRefresh(resultError)
		return Result{}, err
	}

	var pruned int
	u, err := s.store.MutateSessions(ctx, owner, func(cur []RefreshTokenRecord) ([]RefreshTokenRecord, error) {
		i := indexOfHash(cur, hash)
		if i < 0 {
			// Rotated by a concurrent request after the owner lookup.
			return nil, ErrInvalidRefreshToken
		}
		if !cur[i].ExpiresAt.After(now) {
			return withoutIndex(cur, i), ErrRefreshTokenExpired
		}
		rest := withoutIndex(cur, i)
		next := PruneRefreshTokens(withNewest(rec, rest), now, s.cfg.MaxRefreshTokensPerUser)
		pruned = len(rest) + 1 - len(next)
		return next, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrRefreshTokenExpired):
		s.log.Info("auth.refresh.expired", "user_id", owner)
		s.metrics.observeRefresh(resultExpired)
		return Result{}, err
	case errors.Is(err, ErrInvalidRefreshToken), identity.IsNotFound(err):
		s.metrics.observeRefresh(resultInvalidToken)
		return Result{}, ErrInvalidRefreshToken
	default:
		s.metrics.observeRefresh(resultError)
		return Result{}, err
	}
	s.metrics.observePruned(pruned)

	res, err := s.result(u, secret, rec, now)
	if err != nil {
		s.metrics.observeRefresh(resultError)
		return Result{}, err
	}
	s.metrics.observeRefresh(resultSuccess)
	return res, nil
}

// Logout removes the record matching presented, if any. Unknown or already
// removed tokens succeed; only storage failures are returned.
func (s *Service) Logout(ctx context.Context, _ time.Time, presented string) error {
	s.metrics.observeLogout()

	presented = strings.TrimSpace(presented)
	if presented == "" || len(presented) > maxPresentedTokenLen {
		return nil
	}
	hash := s.codec.HashRefreshToken(presented)

	owner, err := s.store.FindOwnerByRefreshHash(ctx, hash)
	if identity.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.store.MutateSessions(ctx, owner, func(cur []RefreshTokenRecord) ([]RefreshTokenRecord, error) {
		i := indexOfHash(cur, hash)
		if i < 0 {
			return nil, nil
		}
		return withoutIndex(cur, i), nil
	})
	if identity.IsNotFound(err) {
		return nil
	}
	return err
}

// LogoutAll removes every session of userID.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	_, err := s.store.MutateSessions(ctx, userID, func([]RefreshTokenRecord) ([]RefreshTokenRecord, error) {
		return []RefreshTokenRecord{}, nil
	})
	if identity.IsNotFound(err) {
		return nil
	}
	return err
}

// ValidateAccessToken verifies an access token. Access tokens are stateless,
// so a valid signature within TTL is sufficient.
func (s *Service) ValidateAccessToken(raw string, now time.Time) (AccessClaims, error) {
	return s.codec.VerifyAccessToken(raw, now)
}

// User returns the public profile for userID.
func (s *Service) User(ctx context.Context, userID string) (identity.PublicUser, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return identity.PublicUser{}, err
	}
	return u.Public(), nil
}

// Sessions returns the live records of userID, newest first.
func (s *Service) Sessions(ctx context.Context, userID string) ([]RefreshTokenRecord, error) {
	return s.store.ListSessions(ctx, userID)
}

func (s *Service) result(u identity.User, secret string, rec RefreshTokenRecord, now time.Time) (Result, error) {
	access, accessExp, err := s.codec.CreateAccessToken(u.ID, u.Role, now)
	if err != nil {
		return Result{}, err
	}
	return Result{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     secret,
		RefreshExpiresAt: rec.ExpiresAt,
		User:             u.Public(),
	}, nil
}
