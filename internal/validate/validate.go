// Package validate holds the stateless input checks that run before any
// account data is persisted. All checks are pure functions: the same
// input always yields the same result, and failures carry a reason
// suitable for direct display.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/pesttrack/pesttrack/internal/settings"
)

// FieldError reports a validation failure for a single named field.
type FieldError struct {
	Field  string // Offending field name.
	Reason string // User-presentable failure reason.
}

func (e *FieldError) Error() string {
	return e.Reason
}

func fieldErr(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Policy carries the configurable length limits for usernames and
// passwords. Email and full-name bounds are fixed by RFC and common
// sense respectively and are not configurable.
type Policy struct {
	MinUsernameLength int
	MaxUsernameLength int
	MinPasswordLength int
	MaxPasswordLength int
}

// DefaultPolicy returns a Policy with the built-in limits.
func DefaultPolicy() Policy {
	return PolicyFromSecurity(settings.DefaultSecurityConfig())
}

// PolicyFromSecurity builds a Policy from the resolved security config.
func PolicyFromSecurity(cfg settings.SecurityConfig) Policy {
	return Policy{
		MinUsernameLength: cfg.MinUsernameLength,
		MaxUsernameLength: cfg.MaxUsernameLength,
		MinPasswordLength: cfg.MinPasswordLength,
		MaxPasswordLength: cfg.MaxPasswordLength,
	}
}

// emailPattern is an RFC 5322-shaped check: printable local part,
// dot-separated alphanumeric labels in the domain.
var emailPattern = regexp.MustCompile(
	`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@` +
		`[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?` +
		`(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`,
)

const (
	maxEmailLength      = 254 // RFC 5321 total length.
	maxEmailLocalLength = 64  // RFC 5321 local part length.
)

// Email checks the shape of an email address.
func Email(s string) *FieldError {
	email := strings.TrimSpace(s)
	if email == "" {
		return fieldErr("email", "email is required")
	}
	if len(email) > maxEmailLength {
		return fieldErr("email", "email address is too long")
	}
	if !emailPattern.MatchString(email) {
		return fieldErr("email", "invalid email format")
	}

	at := strings.LastIndex(email, "@")
	localPart := email[:at]
	if len(localPart) > maxEmailLocalLength {
		return fieldErr("email", "email local part is too long")
	}
	if strings.HasPrefix(localPart, ".") || strings.HasSuffix(localPart, ".") {
		return fieldErr("email", "invalid email format")
	}
	if strings.Contains(email, "..") {
		return fieldErr("email", "invalid email format")
	}
	return nil
}

// reservedUsernames cannot be registered. Blocking them prevents
// identity confusion in a shared audit trail.
var reservedUsernames = map[string]struct{}{
	"admin":         {},
	"root":          {},
	"system":        {},
	"administrator": {},
	"superuser":     {},
	"guest":         {},
	"test":          {},
	"user":          {},
	"null":          {},
	"undefined":     {},
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Username checks length, alphabet, and the reserved-name set.
func (p Policy) Username(s string) *FieldError {
	username := strings.TrimSpace(s)
	if username == "" {
		return fieldErr("username", "username is required")
	}
	if len(username) < p.MinUsernameLength {
		return fieldErr("username", "username must be at least %d characters", p.MinUsernameLength)
	}
	if len(username) > p.MaxUsernameLength {
		return fieldErr("username", "username must be at most %d characters", p.MaxUsernameLength)
	}
	if !usernamePattern.MatchString(username) {
		return fieldErr("username", "username can only contain letters, numbers, underscores, and hyphens, and must start with a letter or number")
	}
	if _, reserved := reservedUsernames[strings.ToLower(username)]; reserved {
		return fieldErr("username", "this username is reserved")
	}
	return nil
}

// commonPasswordSubstrings are rejected anywhere in a password,
// case-insensitively.
var commonPasswordSubstrings = []string{
	"password", "123456", "qwerty", "admin",
	"letmein", "welcome", "monkey", "dragon",
}

// Password checks length, character classes, common patterns, and
// trivially guessable runs. Each failure mode has its own message so
// callers can render actionable feedback.
func (p Policy) Password(s string) *FieldError {
	if s == "" {
		return fieldErr("password", "password is required")
	}
	if len(s) < p.MinPasswordLength {
		return fieldErr("password", "password must be at least %d characters", p.MinPasswordLength)
	}
	if len(s) > p.MaxPasswordLength {
		return fieldErr("password", "password must be at most %d characters", p.MaxPasswordLength)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if !hasUpper {
		return fieldErr("password", "password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fieldErr("password", "password must contain at least one lowercase letter")
	}
	if !hasDigit {
		return fieldErr("password", "password must contain at least one number")
	}
	if !hasSpecial {
		return fieldErr("password", "password must contain at least one special character")
	}

	lowered := strings.ToLower(s)
	for _, pattern := range commonPasswordSubstrings {
		if strings.Contains(lowered, pattern) {
			return fieldErr("password", "password contains a common pattern, please choose a stronger password")
		}
	}

	if hasSequentialRun(lowered, 3) {
		return fieldErr("password", "password should not contain sequential characters")
	}
	if hasRepeatedRun(s, 3) {
		return fieldErr("password", "password should not contain repeated characters")
	}
	return nil
}

// hasSequentialRun reports whether s contains n or more consecutive
// ascending letters or digits (e.g. "abc", "123").
func hasSequentialRun(s string, n int) bool {
	if n < 2 {
		return false
	}
	run := 1
	for i := 1; i < len(s); i++ {
		prev, cur := s[i-1], s[i]
		sequential := cur == prev+1 &&
			((prev >= 'a' && cur <= 'z') || (prev >= '0' && cur <= '9'))
		if sequential {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// hasRepeatedRun reports whether s contains n or more identical
// characters in a row (e.g. "aaa").
func hasRepeatedRun(s string, n int) bool {
	if n < 2 {
		return false
	}
	run := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

const (
	minFullNameLength = 2
	maxFullNameLength = 100
)

// FullName checks an optional display name: Unicode letters, spaces,
// hyphens, and apostrophes, with no doubled whitespace. An empty value
// is valid.
func FullName(s string) *FieldError {
	name := strings.TrimSpace(s)
	if name == "" {
		return nil
	}
	if len([]rune(name)) < minFullNameLength {
		return fieldErr("full_name", "full name must be at least %d characters", minFullNameLength)
	}
	if len([]rune(name)) > maxFullNameLength {
		return fieldErr("full_name", "full name must be at most %d characters", maxFullNameLength)
	}

	prevSpace := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			prevSpace = false
		case r == '-' || r == '\'':
			prevSpace = false
		case unicode.IsSpace(r):
			if prevSpace {
				return fieldErr("full_name", "full name must not contain consecutive spaces")
			}
			prevSpace = true
		default:
			return fieldErr("full_name", "full name can only contain letters, spaces, hyphens, and apostrophes")
		}
	}
	return nil
}
