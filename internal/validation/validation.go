// Package validation checks user-supplied account fields.
package validation

import (
	"errors"
	"regexp"
	"unicode"
	"unicode/utf8"
)

const (
	MinUsernameLength    = 3
	MaxUsernameLength    = 30
	MinPasswordLength    = 12
	MaxPasswordLength    = 128
	MaxDisplayNameLength = 50
	MaxBioLength         = 500
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9_-]*[A-Za-z0-9])?$`)

// ValidateUsername allows letters, digits, '_' and '-', not at either end.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return errors.New("username must be 3-30 characters")
	}
	if !usernamePattern.MatchString(username) {
		return errors.New("username may contain letters, digits, '_' and '-', and must start and end with a letter or digit")
	}
	return nil
}

// ValidatePassword requires upper and lower case letters, a digit and a
// symbol.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return errors.New("password must be 12-128 characters")
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return errors.New("password needs an upper case letter, a lower case letter, a digit and a symbol")
	}
	return nil
}

// ValidateDisplayName bounds the free-form name shown next to posts.
func ValidateDisplayName(name string) error {
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return errors.New("display name too long (max 50 characters)")
	}
	return nil
}

func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return errors.New("bio too long (max 500 characters)")
	}
	return nil
}
