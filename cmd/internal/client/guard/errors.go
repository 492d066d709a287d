package guard

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRefreshToken is returned when a refresh is needed but no refresh token is held.
	ErrNoRefreshToken = errors.New("guard: no refresh token held")

	// ErrRefreshRejected matches any StatusError carrying a 4xx status.
	ErrRefreshRejected = errors.New("guard: refresh rejected")
)

// StatusError is a non-200 answer from the refresh endpoint.
type StatusError struct {
	StatusCode int
	Code       string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("guard: refresh failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("guard: refresh failed with status %d (%s)", e.StatusCode, e.Code)
}

// Is reports 4xx answers as ErrRefreshRejected.
func (e *StatusError) Is(target error) bool {
	return target == ErrRefreshRejected && e.StatusCode >= 400 && e.StatusCode < 500
}

// IsTerminal reports whether err means the server no longer honours the
// session, as opposed to an outage.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNoRefreshToken) || errors.Is(err, ErrRefreshRejected)
}
