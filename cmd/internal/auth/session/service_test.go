package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"campusmart/cmd/identity"
	"campusmart/cmd/security/password"
	"campusmart/cmd/security/token"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "market day 2024!"

type recordingSender struct {
	mu   sync.Mutex
	msgs []VerificationMessage
}

func (r *recordingSender) SendEmailVerification(_ context.Context, msg VerificationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

type fixture struct {
	svc     *Service
	store   *MemoryStore
	metrics *Metrics
	email   *recordingSender
	now     time.Time
}

func fastPasswords() password.Config {
	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Params.Parallelism = 1
	return pw
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	codec, err := NewCodec(cfg, token.Hasher{})
	require.NoError(t, err)

	store := NewMemoryStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	sender := &recordingSender{}

	svc, err := NewService(cfg, store, codec, fastPasswords(), WithMetrics(metrics), WithEmailSender(sender))
	require.NoError(t, err)

	return &fixture{
		svc:     svc,
		store:   store,
		metrics: metrics,
		email:   sender,
		now:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) register(t *testing.T, email string) Result {
	t.Helper()
	res, err := f.svc.Register(context.Background(), f.now, RegisterInput{
		FullName: "Ada Obi",
		Email:    email,
		Password: testPassword,
		Phone:    "+2348000000000",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) sessionHashes(t *testing.T, userID string) []string {
	t.Helper()
	recs, err := f.store.ListSessions(context.Background(), userID)
	require.NoError(t, err)
	return hashes(recs)
}

func TestRegister_IssuesTokensAndSanitizedUser(t *testing.T) {
	f := newFixture(t)

	res := f.register(t, "  Ada.Obi@Babcock.EDU.ng ")

	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "ada.obi@babcock.edu.ng", res.User.Email)
	assert.Equal(t, "ada.obi", res.User.Username)
	assert.Equal(t, identity.RoleUser, res.User.Role)
	assert.Equal(t, identity.CampusRoleStudent, res.User.CampusRole)
	assert.False(t, res.User.IsVerified)
	assert.Equal(t, f.now.Add(30*24*time.Hour), res.RefreshExpiresAt)

	claims, err := f.svc.ValidateAccessToken(res.AccessToken, f.now)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)

	assert.Len(t, f.sessionHashes(t, res.User.ID), 1)
	require.Len(t, f.email.msgs, 1)
	assert.Equal(t, res.User.ID, f.email.msgs[0].UserID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.register.WithLabelValues(resultSuccess)))
}

func TestRegister_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@babcock.edu.ng")

	_, err := f.svc.Register(context.Background(), f.now, RegisterInput{
		FullName: "Other", Email: "A@BABCOCK.edu.ng", Password: testPassword, Phone: "1", Username: "someone",
	})
	require.ErrorIs(t, err, ErrDuplicateAccount)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.register.WithLabelValues(resultDuplicate)))
}

func TestRegister_UsernameCollisionAppendsSuffix(t *testing.T) {
	f := newFixture(t)

	first := f.register(t, "ada@uni.edu")
	second := f.register(t, "ada@other.edu")
	third := f.register(t, "ADA@third.edu")

	assert.Equal(t, "ada", first.User.Username)
	assert.Equal(t, "ada1", second.User.Username)
	assert.Equal(t, "ada2", third.User.Username)
}

func TestRegister_UsernameSearchIsBounded(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxUsernameAttempts = 2 })

	f.register(t, "ada@uni.edu")
	f.register(t, "ada@other.edu")

	_, err := f.svc.Register(context.Background(), f.now, RegisterInput{
		FullName: "Ada", Email: "ada@third.edu", Password: testPassword, Phone: "1",
	})
	require.ErrorIs(t, err, ErrUsernameUnavailable)
}

func TestRegister_DuplicateEmailWinsOverExhaustedUsernames(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxUsernameAttempts = 1 })
	f.register(t, "ada@uni.edu")

	_, err := f.svc.Register(context.Background(), f.now, RegisterInput{
		FullName: "Ada", Email: "ADA@uni.edu", Password: testPassword, Phone: "1",
	})
	require.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestRegister_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{name: "missing name", in: RegisterInput{Email: "a@b.c", Password: testPassword, Phone: "1"}, want: identity.ErrInvalidInput},
		{name: "bad email", in: RegisterInput{FullName: "A", Email: "nope", Password: testPassword, Phone: "1"}, want: identity.ErrInvalidInput},
		{name: "missing phone", in: RegisterInput{FullName: "A", Email: "a@b.c", Password: testPassword}, want: identity.ErrInvalidInput},
		{name: "unknown campus role", in: RegisterInput{FullName: "A", Email: "a@b.c", Password: testPassword, Phone: "1", CampusRole: "alien"}, want: identity.ErrInvalidInput},
		{name: "short password", in: RegisterInput{FullName: "A", Email: "a@b.c", Password: "x", Phone: "1"}, want: password.ErrPasswordTooShort},
	}
	for _, tc := range cases {
		_, err := f.svc.Register(ctx, f.now, tc.in)
		assert.ErrorIs(t, err, tc.want, tc.name)
	}
}

func TestLogin_ByEmailOrUsername(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "ada@uni.edu")
	ctx := context.Background()

	byEmail, err := f.svc.Login(ctx, f.now, " ADA@uni.edu", testPassword)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, byEmail.User.ID)

	byUsername, err := f.svc.Login(ctx, f.now, "Ada", testPassword)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, byUsername.User.ID)

	assert.Len(t, f.sessionHashes(t, reg.User.ID), 3)
}

func TestLogin_IdentifierMatchesExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, f.now, RegisterInput{
		FullName: "Ada", Email: "ada@uni.edu", Password: testPassword, Phone: "1", Username: "ababcock.edu.ng",
	})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, f.now, RegisterInput{
		FullName: "John", Email: "john@uni.edu", Password: testPassword, Phone: "1", Username: "john",
	})
	require.NoError(t, err)

	for _, id := range []string{"a@babcock.edu.ng", "John!", "jo hn"} {
		_, err := f.svc.Login(ctx, f.now, id, testPassword)
		assert.ErrorIs(t, err, ErrInvalidCredentials, id)
	}

	_, err = f.svc.Login(ctx, f.now, " JOHN ", testPassword)
	assert.NoError(t, err)
}

func TestLogin_NoEnumerationLeak(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@uni.edu")
	ctx := context.Background()

	_, errUnknown := f.svc.Login(ctx, f.now, "ghost@uni.edu", testPassword)
	_, errWrong := f.svc.Login(ctx, f.now, "ada@uni.edu", "wrong password!")

	require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.login.WithLabelValues(resultInvalidCredentials)))
}

func TestLogin_SessionCapEvictsOldest(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "ada@uni.edu")
	ctx := context.Background()

	var refresh []string
	for i := 1; i <= 6; i++ {
		res, err := f.svc.Login(ctx, f.now.Add(time.Duration(i)*time.Minute), "ada@uni.edu", testPassword)
		require.NoError(t, err)
		refresh = append(refresh, res.RefreshToken)
	}

	stored := f.sessionHashes(t, reg.User.ID)
	require.Len(t, stored, 5)
	assert.NotContains(t, stored, f.svc.codec.HashRefreshToken(refresh[0]))
	assert.NotContains(t, stored, f.svc.codec.HashRefreshToken(reg.RefreshToken))
	assert.Equal(t, f.svc.codec.HashRefreshToken(refresh[5]), stored[0])
}

func TestLogin_SameInstantKeepsNewest(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxRefreshTokensPerUser = 1 })
	reg := f.register(t, "ada@uni.edu")

	res, err := f.svc.Login(context.Background(), f.now, "ada@uni.edu", testPassword)
	require.NoError(t, err)

	stored := f.sessionHashes(t, reg.User.ID)
	assert.Equal(t, []string{f.svc.codec.HashRefreshToken(res.RefreshToken)}, stored)
}

func TestRefresh_EndToEndRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "a@babcock.edu.ng")
	refresh1 := reg.RefreshToken

	second, err := f.svc.Refresh(ctx, f.now.Add(time.Minute), refresh1)
	require.NoError(t, err)
	refresh2 := second.RefreshToken
	assert.NotEqual(t, refresh1, refresh2)
	assert.NotEmpty(t, second.AccessToken)
	assert.Equal(t, reg.User.ID, second.User.ID)

	_, err = f.svc.Refresh(ctx, f.now.Add(2*time.Minute), refresh1)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	third, err := f.svc.Refresh(ctx, f.now.Add(3*time.Minute), refresh2)
	require.NoError(t, err)
	assert.NotEqual(t, refresh2, third.RefreshToken)

	assert.Len(t, f.sessionHashes(t, reg.User.ID), 1)
}

func TestRefresh_ExpiredRecordIsEvicted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@uni.edu")

	later := f.now.Add(31 * 24 * time.Hour)
	_, err := f.svc.Refresh(ctx, later, reg.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenExpired)
	assert.Empty(t, f.sessionHashes(t, reg.User.ID))

	_, err = f.svc.Refresh(ctx, later, reg.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.refresh.WithLabelValues(resultExpired)))
}

func TestRefresh_RejectsJunk(t *testing.T) {
	f := newFixture(t)
	for _, in := range []string{"", "   ", "forged-token", string(make([]byte, 5000))} {
		_, err := f.svc.Refresh(context.Background(), f.now, in)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	}
}

func TestRefresh_ConcurrentSameTokenSingleWinner(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "ada@uni.edu")

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		invalid int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(context.Background(), f.now.Add(time.Second), reg.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrInvalidRefreshToken):
				invalid++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, invalid)
	assert.Len(t, f.sessionHashes(t, reg.User.ID), 1)
}

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@uni.edu")

	require.NoError(t, f.svc.Logout(ctx, f.now, reg.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, f.now, reg.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, f.now, "never-issued"))
	require.NoError(t, f.svc.Logout(ctx, f.now, ""))

	assert.Empty(t, f.sessionHashes(t, reg.User.ID))

	_, err := f.svc.Refresh(ctx, f.now, reg.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestLogout_LeavesOtherSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@uni.edu")
	other, err := f.svc.Login(ctx, f.now.Add(time.Minute), "ada@uni.edu", testPassword)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, f.now, reg.RefreshToken))

	_, err = f.svc.Refresh(ctx, f.now.Add(2*time.Minute), other.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := f.register(t, "ada@uni.edu")
	_, err := f.svc.Login(ctx, f.now, "ada@uni.edu", testPassword)
	require.NoError(t, err)

	require.NoError(t, f.svc.LogoutAll(ctx, reg.User.ID))
	assert.Empty(t, f.sessionHashes(t, reg.User.ID))
	require.NoError(t, f.svc.LogoutAll(ctx, "missing-user"))
}
