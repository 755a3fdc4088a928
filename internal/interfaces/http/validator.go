package http

import (
	"regexp"
	"strconv"
	"unicode/utf8"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MinPasswordLength = 6
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidUsername checks an owner login name (alphanumeric, underscore, dot, hyphen).
func ValidUsername(s string) bool {
	return ValidateLength(s, MinUsernameLength, MaxUsernameLength) && usernamePattern.MatchString(s)
}

// ValidateLength checks if the rune count of s is within bounds.
func ValidateLength(s string, min, max int) bool {
	l := utf8.RuneCountInString(s)
	return l >= min && l <= max
}

// parseID reads a positive integer path or query value.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
