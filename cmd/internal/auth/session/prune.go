package session

import (
	"slices"
	"time"
)

// PruneRefreshTokens drops records expired as of now, orders the rest newest
// first by CreatedAt and keeps at most limit. Records with equal CreatedAt keep
// their input order. The input slice is not modified and the result is never nil.
func PruneRefreshTokens(records []RefreshTokenRecord, now time.Time, limit int) []RefreshTokenRecord {
	out := make([]RefreshTokenRecord, 0, len(records))
	for _, r := range records {
		if r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}

	slices.SortStableFunc(out, func(a, b RefreshTokenRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// indexOfHash returns the position of hash in records, or -1.
func indexOfHash(records []RefreshTokenRecord, hash string) int {
	return slices.IndexFunc(records, func(r RefreshTokenRecord) bool {
		return r.TokenHash == hash
	})
}

// withoutIndex returns a copy of records with position i removed. Never nil.
func withoutIndex(records []RefreshTokenRecord, i int) []RefreshTokenRecord {
	out := make([]RefreshTokenRecord, 0, len(records))
	out = append(out, records[:i]...)
	return append(out, records[i+1:]...)
}

// withNewest returns a copy of records with rec placed first.
func withNewest(rec RefreshTokenRecord, records []RefreshTokenRecord) []RefreshTokenRecord {
	out := make([]RefreshTokenRecord, 0, len(records)+1)
	out = append(out, rec)
	return append(out, records...)
}
