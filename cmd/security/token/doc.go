// Package token provides the opaque-token primitives used for refresh tokens.
//
// It is the single source of truth for how refresh-token secrets are generated
// and how they are hashed for storage.
//
// Hashing modes:
//   - SHA-256(token) when no key is configured (development).
//   - HMAC-SHA256(token, key) when MART_TOKEN_HMAC_KEY is set.
//
// Both modes produce a stable 64-char lower-case hex digest, so stored hashes
// can be compared with subtle.ConstantTimeCompare and used as lookup keys.
//
// Policy:
//   - When MART_REQUIRE_TOKEN_HMAC=true, callers must build the hasher with
//     HasherFromEnv(true, 32) so a missing or short key fails at startup.
package token
