// Package password hashes and verifies account passwords.
//
// Hashes are Argon2id in the PHC string format:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Stored hashes are treated as untrusted input during Verify: malformed strings
// and cost parameters far above the configured ones are rejected before any
// key derivation runs.
package password
