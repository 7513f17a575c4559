package validator

import (
	"errors"
	"strings"
	"unicode"
)

const MaxHWIDLength = 256

var (
	ErrInvalidUserID = errors.New("user id must be 1 to 20 digits")
	ErrInvalidHWID   = errors.New("hwid must be 1 to 256 printable characters")
)

// ValidateUserID accepts chat platform snowflake ids: decimal digits only.
func ValidateUserID(id string) error {
	if id == "" || len(id) > 20 {
		return ErrInvalidUserID
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return ErrInvalidUserID
		}
	}
	return nil
}

func ValidateHWID(hwid string) error {
	if strings.TrimSpace(hwid) == "" || len(hwid) > MaxHWIDLength {
		return ErrInvalidHWID
	}
	for _, c := range hwid {
		if !unicode.IsPrint(c) {
			return ErrInvalidHWID
		}
	}
	return nil
}
