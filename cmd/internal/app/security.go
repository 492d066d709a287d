package app

import (
	"errors"
	"fmt"

	"campusmart/cmd/internal/auth/session"
	"campusmart/cmd/security/token"
)

// minHMACKeyBytes is the shortest accepted MART_TOKEN_HMAC_KEY.
const minHMACKeyBytes = 32

// loadTokenHasher resolves the refresh-token hasher under the configured policy.
func loadTokenHasher(cfg Config) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireTokenHMAC, minHMACKeyBytes)
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, errors.New("security policy: MART_REQUIRE_TOKEN_HMAC=true but MART_TOKEN_HMAC_KEY is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, fmt.Errorf("security policy: MART_TOKEN_HMAC_KEY is too short (min %d bytes)", minHMACKeyBytes)
	default:
		return token.Hasher{}, err
	}
}

// ValidateSecurityConfig enforces the startup security policy. It fails fast
// instead of falling back to weaker settings.
func ValidateSecurityConfig(cfg Config, sessCfg session.Config, hasher token.Hasher) error {
	if len(sessCfg.JWTSecret) < session.MinJWTSecretBytes {
		return fmt.Errorf("security policy: MART_JWT_SECRET must be at least %d bytes", session.MinJWTSecretBytes)
	}
	if cfg.RequireTokenHMAC && !hasher.HMAC() {
		return errors.New("security policy: MART_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}
	return nil
}
