package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"campusmart/cmd/identity"
)

func TestMemoryStore_MutateSessionsPersistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	u := identity.User{ID: "u1", Email: "a@uni.edu", Username: "a"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	r1 := RefreshTokenRecord{TokenHash: "h1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	if _, err := s.MutateSessions(ctx, "u1", func(cur []RefreshTokenRecord) ([]RefreshTokenRecord, error) {
		return append(cur, r1), nil
	}); err != nil {
		t.Fatalf("MutateSessions: %v", err)
	}
	if owner, err := s.FindOwnerByRefreshHash(ctx, "h1"); err != nil || owner != "u1" {
		t.Fatalf("FindOwnerByRefreshHash=%q,%v", owner, err)
	}

	sentinel := errors.New("boom")

	// nil result: untouched even with an error.
	_, err := s.MutateSessions(ctx, "u1", func([]RefreshTokenRecord) ([]RefreshTokenRecord, error) {
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if recs, _ := s.ListSessions(ctx, "u1"); len(recs) != 1 {
		t.Fatalf("nil result must not change the collection, got %d", len(recs))
	}

	// non-nil result: persisted even with an error.
	_, err = s.MutateSessions(ctx, "u1", func([]RefreshTokenRecord) ([]RefreshTokenRecord, error) {
		return []RefreshTokenRecord{}, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if recs, _ := s.ListSessions(ctx, "u1"); len(recs) != 0 {
		t.Fatalf("empty result must clear the collection, got %d", len(recs))
	}
	if _, err := s.FindOwnerByRefreshHash(ctx, "h1"); !identity.IsNotFound(err) {
		t.Fatalf("hash index not cleared: %v", err)
	}
}

func TestMemoryStore_CreateUserConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateUser(ctx, identity.User{ID: "u1", Email: "a@uni.edu", Username: "a"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	cases := []struct {
		u     identity.User
		field string
	}{
		{u: identity.User{ID: "u2", Email: "a@uni.edu", Username: "b"}, field: "email"},
		{u: identity.User{ID: "u3", Email: "b@uni.edu", Username: "a"}, field: "username"},
	}
	for _, tc := range cases {
		err := s.CreateUser(ctx, tc.u)
		field, ok := identity.ConflictField(err)
		if !ok || field != tc.field {
			t.Fatalf("CreateUser(%s) conflict=%v field=%q want %q", tc.u.ID, ok, field, tc.field)
		}
	}

	if _, err := s.MutateSessions(ctx, "missing", func(c []RefreshTokenRecord) ([]RefreshTokenRecord, error) { return c, nil }); !identity.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
