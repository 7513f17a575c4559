package licensing

import (
	"errors"
	"time"
)

// Rejections. These are expected outcomes the caller renders for the user.
var (
	ErrMissingCredentials = errors.New("licensing: key and hwid are required")
	ErrInvalidKey         = errors.New("licensing: invalid key")
	ErrExpired            = errors.New("licensing: key expired")
	ErrHwidMismatch       = errors.New("licensing: key bound to a different hwid")
	ErrBlacklisted        = errors.New("licensing: user is blacklisted")
	ErrNoKeyFound         = errors.New("licensing: user owns no key")
	ErrCooldownActive     = errors.New("licensing: reset cooldown active")
	ErrNotFound           = errors.New("licensing: key not found")
	ErrNotBlacklisted     = errors.New("licensing: user is not blacklisted")
	ErrDuplicateKey       = errors.New("licensing: duplicate key")
	ErrInvalidKeyType     = errors.New("licensing: invalid key type")
	ErrScriptNotFound     = errors.New("licensing: script not found")
	ErrInvalidScript      = errors.New("licensing: invalid script")
)

// ErrStorageUnavailable wraps every failure coming out of the repository.
var ErrStorageUnavailable = errors.New("licensing: storage unavailable")

var rejections = []error{
	ErrMissingCredentials,
	ErrInvalidKey,
	ErrExpired,
	ErrHwidMismatch,
	ErrBlacklisted,
	ErrNoKeyFound,
	ErrCooldownActive,
	ErrNotFound,
	ErrNotBlacklisted,
	ErrDuplicateKey,
	ErrInvalidKeyType,
	ErrScriptNotFound,
	ErrInvalidScript,
}

// CooldownError is returned by ResetForUser while the user's previous reset
// is still inside the cooldown window.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return ErrCooldownActive.Error() + " (" + e.Remaining.Round(time.Second).String() + " remaining)"
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}

// Parts splits the remaining time into whole hours and minutes.
func (e *CooldownError) Parts() (hours, minutes int) {
	secs := int(e.Remaining / time.Second)
	return secs / 3600, (secs % 3600) / 60
}

// IsRejection reports whether err is an expected outcome rather than a fault.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
