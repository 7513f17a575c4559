package errors

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeUnavailable       = "STORAGE_UNAVAILABLE"

	// Key lifecycle outcomes.
	ErrCodeMissingCredentials = "MISSING_CREDENTIALS"
	ErrCodeInvalidKey         = "INVALID_KEY"
	ErrCodeExpired            = "EXPIRED"
	ErrCodeHwidMismatch       = "HWID_MISMATCH"
	ErrCodeBlacklisted        = "BLACKLISTED"
	ErrCodeNoKeyFound         = "NO_KEY_FOUND"
	ErrCodeCooldownActive     = "COOLDOWN_ACTIVE"
	ErrCodeNotBlacklisted     = "NOT_BLACKLISTED"
)

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
