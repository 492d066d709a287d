package session

import (
	"context"
	"time"

	"campusmart/cmd/identity"
)

// RefreshTokenRecord is one live session: the hash of an issued refresh token.
type RefreshTokenRecord struct {
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Mutation receives a copy of a user's session collection and returns the
// collection to persist.
//
// A nil next leaves the stored collection untouched. A non-nil next is
// persisted even when err is non-nil, which lets a failing refresh still
// record the eviction of an expired record. err is returned to the caller
// of MutateSessions unchanged.
type Mutation func(current []RefreshTokenRecord) (next []RefreshTokenRecord, err error)

// Store persists users and their session collections.
//
// Implementations must run MutateSessions as one atomic read-modify-write per
// user: two concurrent mutations of the same user never observe the same
// starting collection.
type Store interface {
	// CreateUser inserts u. Email or username collisions return identity.ConflictError
	// with Field "email" or "username".
	CreateUser(ctx context.Context, u identity.User) error

	// UsernameExists reports whether a normalized username is taken.
	UsernameExists(ctx context.Context, username string) (bool, error)

	// GetUserByID loads a user. Missing users return identity.NotFoundError.
	GetUserByID(ctx context.Context, userID string) (identity.User, error)

	// FindUserByLogin loads the user whose normalized email equals email or whose
	// username equals username, preferring the email match.
	FindUserByLogin(ctx context.Context, email, username string) (identity.User, error)

	// FindOwnerByRefreshHash returns the ID of the user holding a record with hash.
	FindOwnerByRefreshHash(ctx context.Context, hash string) (string, error)

	// MutateSessions applies fn to the user's collection atomically and returns
	// the user as read under the same lock.
	MutateSessions(ctx context.Context, userID string, fn Mutation) (identity.User, error)

	// ListSessions returns the user's collection, newest first.
	ListSessions(ctx context.Context, userID string) ([]RefreshTokenRecord, error)
}
