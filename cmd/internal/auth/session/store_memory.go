package session

import (
	"context"
	"slices"
	"sync"

	"campusmart/cmd/identity"
)

// MemoryStore is the in-process Store used for development and tests.
// A single mutex serializes every operation.
type MemoryStore struct {
	mu sync.Mutex

	users      map[string]*memUser // user ID -> user
	byEmail    map[string]string   // normalized email -> user ID
	byUsername map[string]string   // username -> user ID
	byHash     map[string]string   // refresh token hash -> user ID
}

type memUser struct {
	user     identity.User
	sessions []RefreshTokenRecord
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*memUser),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		byHash:     make(map[string]string),
	}
}

// CreateUser inserts u, enforcing unique email and username.
func (s *MemoryStore) CreateUser(ctx context.Context, u identity.User) error {
	const op = "session.MemoryStore.CreateUser"
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.ID == "" || u.Email == "" || u.Username == "" {
		return identity.Invalid(op, "id, email and username are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.Email]; ok {
		return identity.ConflictError{Op: op, Field: "email"}
	}
	if _, ok := s.byUsername[u.Username]; ok {
		return identity.ConflictError{Op: op, Field: "username"}
	}

	s.users[u.ID] = &memUser{user: u}
	s.byEmail[u.Email] = u.ID
	s.byUsername[u.Username] = u.ID
	return nil
}

// UsernameExists reports whether username is taken.
func (s *MemoryStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byUsername[username]
	return ok, nil
}

// GetUserByID loads a user by ID.
func (s *MemoryStore) GetUserByID(ctx context.Context, userID string) (identity.User, error) {
	if err := ctx.Err(); err != nil {
		return identity.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.users[userID]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "session.MemoryStore.GetUserByID", Resource: "user"}
	}
	return mu.user, nil
}

// FindUserByLogin matches email first, then username.
func (s *MemoryStore) FindUserByLogin(ctx context.Context, email, username string) (identity.User, error) {
	if err := ctx.Err(); err != nil {
		return identity.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok && username != "" {
		id, ok = s.byUsername[username]
	}
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "session.MemoryStore.FindUserByLogin", Resource: "user"}
	}
	return s.users[id].user, nil
}

// FindOwnerByRefreshHash returns the user holding hash.
func (s *MemoryStore) FindOwnerByRefreshHash(ctx context.Context, hash string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[hash]
	if !ok {
		return "", identity.NotFoundError{Op: "session.MemoryStore.FindOwnerByRefreshHash", Resource: "refresh_token"}
	}
	return id, nil
}

// MutateSessions applies fn under the store mutex.
func (s *MemoryStore) MutateSessions(ctx context.Context, userID string, fn Mutation) (identity.User, error) {
	if err := ctx.Err(); err != nil {
		return identity.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.users[userID]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "session.MemoryStore.MutateSessions", Resource: "user"}
	}

	next, err := fn(slices.Clone(mu.sessions))
	if next != nil {
		for _, r := range mu.sessions {
			delete(s.byHash, r.TokenHash)
		}
		mu.sessions = slices.Clone(next)
		for _, r := range mu.sessions {
			s.byHash[r.TokenHash] = userID
		}
	}
	return mu.user, err
}

// ListSessions returns a copy of the user's collection, newest first.
func (s *MemoryStore) ListSessions(ctx context.Context, userID string) ([]RefreshTokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.users[userID]
	if !ok {
		return nil, identity.NotFoundError{Op: "session.MemoryStore.ListSessions", Resource: "user"}
	}
	out := slices.Clone(mu.sessions)
	slices.SortStableFunc(out, func(a, b RefreshTokenRecord) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}
