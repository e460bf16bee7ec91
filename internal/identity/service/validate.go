package service

import (
	"regexp"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
	maxNameLen     = 100
	maxEmailLen    = 254
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return invalidInput("email is required")
	}
	if len(email) > maxEmailLen || !emailPattern.MatchString(email) {
		return invalidInput("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLen {
		return invalidInput("password must be at least 8 characters")
	}
	if n > maxPasswordLen {
		return invalidInput("password must be at most 128 characters")
	}
	return nil
}

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return invalidInput("name is required")
	}
	if n > maxNameLen {
		return invalidInput("name must be at most 100 characters")
	}
	return nil
}

// isUUID reports whether id is well-formed. Postgres rejects other text for
// uuid columns instead of matching nothing.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
