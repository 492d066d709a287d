// Package session implements campusmart's access/refresh token lifecycle.
//
// Access tokens are HS256 JWTs carrying the user ID and role. They are
// stateless and are not revoked individually.
//
// Refresh tokens are opaque random strings. Only their hash is stored, in a
// per-user collection capped at Config.MaxRefreshTokensPerUser. Every
// token-issuing mutation prunes expired records and then evicts the oldest
// ones. A refresh token is single-use: a successful refresh removes its record
// and inserts a new one under the same per-user lock.
//
// The Service is the only writer of session collections. Stores provide the
// per-user atomic read-modify-write (MutateSessions) that rotation relies on.
package session
