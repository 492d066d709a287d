package identity

import (
	"strconv"
	"strings"
	"unicode"
)

const (
	// MaxUsernameLen bounds stored usernames, suffix included.
	MaxUsernameLen = 32

	fallbackUsername = "student"
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeUsername lower-cases s and keeps only [a-z0-9._].
func NormalizeUsername(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			return r
		case unicode.IsSpace(r), r == '-':
			return '_'
		default:
			return -1
		}
	}, s)
}

// UsernameBase picks the username stem for a registration: the requested
// username when given, otherwise the local part of the email.
func UsernameBase(requested, email string) string {
	base := NormalizeUsername(requested)
	if base == "" {
		local, _, _ := strings.Cut(NormalizeEmail(email), "@")
		base = NormalizeUsername(local)
	}
	base = strings.Trim(base, "._")
	if base == "" {
		base = fallbackUsername
	}
	if len(base) > MaxUsernameLen {
		base = base[:MaxUsernameLen]
	}
	return base
}

// UsernameCandidate returns the n-th candidate for base: base itself for n == 0,
// otherwise base with n appended, truncating base so the result fits MaxUsernameLen.
func UsernameCandidate(base string, n int) string {
	if n <= 0 {
		return base
	}
	suffix := strconv.Itoa(n)
	if keep := MaxUsernameLen - len(suffix); len(base) > keep {
		base = base[:keep]
	}
	return base + suffix
}
