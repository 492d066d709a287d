package session

import (
	"context"
	"errors"
	"strings"

	"campusmart/cmd/identity"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// userColumns is the column list scanned by scanUser, in order.
const userColumns = `
	id, username, full_name, email, phone,
	campus_role, role, is_verified, profile_image,
	password_hash, created_at`

// PostgresStore implements Store over mart.users and mart.refresh_tokens.
// The pool is owned by the caller.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateUser inserts a user row.
func (s *PostgresStore) CreateUser(ctx context.Context, u identity.User) error {
	const op = "session.PostgresStore.CreateUser"

	_, err := s.pool.Exec(ctx, `
		INSERT INTO mart.users (
			id, username, full_name, email, phone,
			campus_role, role, is_verified, profile_image,
			password_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Username, u.FullName, u.Email, u.Phone,
		string(u.CampusRole), string(u.Role), u.IsVerified, u.ProfileImage,
		u.PasswordHash, u.CreatedAt)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return identity.ConflictError{Op: op, Field: field}
		}
		return err
	}
	return nil
}

// UsernameExists reports whether username is taken.
func (s *PostgresStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM mart.users WHERE username = $1)`,
		username,
	).Scan(&exists)
	return exists, err
}

// GetUserByID loads a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (identity.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM mart.users WHERE id = $1`, userID)
	return scanUser(row, "session.PostgresStore.GetUserByID")
}

// FindUserByLogin matches email first, then username.
func (s *PostgresStore) FindUserByLogin(ctx context.Context, email, username string) (identity.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM mart.users
		WHERE email = $1 OR (username = $2 AND $2 <> '')
		ORDER BY (email = $1) DESC
		LIMIT 1
	`, email, username)
	return scanUser(row, "session.PostgresStore.FindUserByLogin")
}

// FindOwnerByRefreshHash returns the user holding hash.
func (s *PostgresStore) FindOwnerByRefreshHash(ctx context.Context, hash string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM mart.refresh_tokens WHERE token_hash = $1`,
		hash,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", identity.NotFoundError{Op: "session.PostgresStore.FindOwnerByRefreshHash", Resource: "refresh_token"}
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// MutateSessions locks the user row (SELECT ... FOR UPDATE), applies fn to the
// user's records, and replaces them inside the same transaction.
func (s *PostgresStore) MutateSessions(ctx context.Context, userID string, fn Mutation) (identity.User, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return identity.User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	user, err := lockUserTx(ctx, tx, userID)
	if err != nil {
		return identity.User{}, err
	}

	current, err := listSessionsTx(ctx, tx, userID)
	if err != nil {
		return identity.User{}, err
	}

	next, fnErr := fn(current)
	if next == nil {
		return user, fnErr
	}

	if err := replaceSessionsTx(ctx, tx, userID, next); err != nil {
		return identity.User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return identity.User{}, err
	}
	return user, fnErr
}

// ListSessions returns the user's records, newest first.
func (s *PostgresStore) ListSessions(ctx context.Context, userID string) ([]RefreshTokenRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_hash, expires_at, created_at
		FROM mart.refresh_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[RefreshTokenRecord])
}

func scanUser(row pgx.Row, op string) (identity.User, error) {
	var (
		u                identity.User
		campusRole, role string
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.FullName, &u.Email, &u.Phone,
		&campusRole, &role, &u.IsVerified, &u.ProfileImage,
		&u.PasswordHash, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return identity.User{}, identity.NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return identity.User{}, err
	}
	u.CampusRole, _ = identity.ParseCampusRole(campusRole)
	u.Role = identity.ParseRole(role)
	return u, nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email", strings.Contains(c, "email"):
		return "email", true
	case c == "uq_users_username", strings.Contains(c, "username"):
		return "username", true
	case strings.Contains(c, "refresh_tokens"):
		return "refresh_token", true
	default:
		return "unique", true
	}
}
