package session

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrDuplicateAccount is returned when the registration email is already in use.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrUsernameUnavailable is returned when no free username suffix was found within the attempt bound.
	ErrUsernameUnavailable = errors.New("username unavailable")

	// ErrInvalidCredentials is returned for any login failure. It never says which part was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRefreshToken is returned when a presented refresh token matches no stored record.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrRefreshTokenExpired is returned when the record was found past its expiry. The record is evicted.
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// IsTerminalRefreshError reports whether err means the client must re-authenticate.
func IsTerminalRefreshError(err error) bool {
	return errors.Is(err, ErrInvalidRefreshToken) || errors.Is(err, ErrRefreshTokenExpired)
}
