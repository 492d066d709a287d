package session

import (
	"context"

	"campusmart/cmd/identity"

	"github.com/jackc/pgx/v5"
)

// lockUserTx loads the user row and holds its lock until tx ends.
// Every session mutation for the user serializes on this lock.
func lockUserTx(ctx context.Context, tx pgx.Tx, userID string) (identity.User, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM mart.users
		WHERE id = $1
		FOR UPDATE
	`, userID)
	return scanUser(row, "session.PostgresStore.MutateSessions")
}

func listSessionsTx(ctx context.Context, tx pgx.Tx, userID string) ([]RefreshTokenRecord, error) {
	rows, err := tx.Query(ctx, `
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

// replaceSessionsTx makes the stored collection equal to records.
// Collections hold at most a handful of rows, so it deletes and re-copies them all.
func replaceSessionsTx(ctx context.Context, tx pgx.Tx, userID string, records []RefreshTokenRecord) error {
	if _, err := tx.Exec(ctx, `DELETE FROM mart.refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"mart", "refresh_tokens"},
		[]string{"token_hash", "user_id", "expires_at", "created_at"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{r.TokenHash, userID, r.ExpiresAt, r.CreatedAt}, nil
		}),
	)
	return err
}
