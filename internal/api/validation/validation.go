package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// EmailRegex validates email format
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// UUIDRegex validates UUID format
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// Usernames are lowercase so they compare equal however they are typed.
	usernameRegex = regexp.MustCompile(`^[a-z0-9._\-]+$`)
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// IsValidEmail checks if the string is a valid email format
func IsValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// IsValidUUID checks if the string is a valid UUID format
func IsValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// ValidateUsername returns an empty string for a valid username and the
// problem otherwise.
func ValidateUsername(username string) string {
	switch {
	case username == "":
		return "Username is required"
	case len(username) < MinUsernameLength:
		return "Username must be at least 3 characters long"
	case len(username) > MaxUsernameLength:
		return "Username must be at most 32 characters long"
	case username != strings.ToLower(username):
		return "Username must be in lower case"
	case !usernameRegex.MatchString(username):
		return "Username may only contain letters, numbers, dots, dashes and underscores"
	}
	return ""
}

// ValidatePassword checks length only; strength rules are left to clients.
func ValidatePassword(password string) string {
	switch {
	case password == "":
		return "Password is required"
	case len(password) < MinPasswordLength:
		return "Password must be at least 8 characters"
	case len(password) > MaxPasswordLength:
		return "Password must be at most 128 characters"
	}
	return ""
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Remove control characters except newlines and tabs
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// TooLong reports whether s has more than maxLen characters.
func TooLong(s string, maxLen int) bool {
	return utf8.RuneCountInString(s) > maxLen
}

// TruncateString truncates a string to maxLen characters
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
