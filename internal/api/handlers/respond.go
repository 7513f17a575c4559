package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog/log"

	apiContext "keyhub/internal/api/context"
	"keyhub/internal/api/middleware"
	"keyhub/internal/engine/licensing"
	"keyhub/internal/pkg/errors"
	"keyhub/internal/platform/audit"
	"keyhub/internal/platform/auth"
)

type outcome struct {
	status  int
	code    string
	message string
}

// classify maps a Keystore error to its HTTP rendering. Unknown errors are
// storage faults.
func classify(err error) outcome {
	switch {
	case stderrors.Is(err, licensing.ErrMissingCredentials):
		return outcome{http.StatusBadRequest, errors.ErrCodeMissingCredentials, "Missing key or HWID"}
	case stderrors.Is(err, licensing.ErrInvalidKey):
		return outcome{http.StatusUnauthorized, errors.ErrCodeInvalidKey, "Invalid key"}
	case stderrors.Is(err, licensing.ErrExpired):
		return outcome{http.StatusUnauthorized, errors.ErrCodeExpired, "Key has expired"}
	case stderrors.Is(err, licensing.ErrHwidMismatch):
		return outcome{http.StatusUnauthorized, errors.ErrCodeHwidMismatch, "Key is already bound to different HWID"}
	case stderrors.Is(err, licensing.ErrBlacklisted):
		return outcome{http.StatusForbidden, errors.ErrCodeBlacklisted, "User is blacklisted"}
	case stderrors.Is(err, licensing.ErrNoKeyFound):
		return outcome{http.StatusNotFound, errors.ErrCodeNoKeyFound, "You don't have a key yet"}
	case stderrors.Is(err, licensing.ErrCooldownActive):
		return outcome{http.StatusTooManyRequests, errors.ErrCodeCooldownActive, "HWID reset is on cooldown"}
	case stderrors.Is(err, licensing.ErrNotFound):
		return outcome{http.StatusNotFound, errors.ErrCodeNotFound, "Key not found"}
	case stderrors.Is(err, licensing.ErrNotBlacklisted):
		return outcome{http.StatusNotFound, errors.ErrCodeNotBlacklisted, "User is not blacklisted"}
	case stderrors.Is(err, licensing.ErrInvalidKeyType):
		return outcome{http.StatusBadRequest, errors.ErrCodeInvalidInput, "Key type must be permanent or temporary"}
	case stderrors.Is(err, licensing.ErrScriptNotFound):
		return outcome{http.StatusNotFound, errors.ErrCodeNotFound, "Script not found"}
	case stderrors.Is(err, licensing.ErrInvalidScript):
		return outcome{http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid script"}
	case stderrors.Is(err, licensing.ErrDuplicateKey):
		return outcome{http.StatusConflict, errors.ErrCodeConflict, "Could not allocate a unique key"}
	default:
		return outcome{http.StatusInternalServerError, errors.ErrCodeInternal, "Storage unavailable"}
	}
}

func cooldownDetails(err error) map[string]int {
	var cd *licensing.CooldownError
	if !stderrors.As(err, &cd) {
		return nil
	}
	hours, minutes := cd.Parts()
	return map[string]int{
		"remaining_seconds": int(cd.Remaining.Seconds()),
		"hours":             hours,
		"minutes":           minutes,
	}
}

func writeKeystoreError(w http.ResponseWriter, r *http.Request, err error) {
	o := classify(err)
	if o.status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("keystore operation failed")
	}

	var details interface{}
	if d := cooldownDetails(err); d != nil {
		details = d
	}
	errors.WriteError(w, o.status, o.code, o.message, details)
}

func actor(r *http.Request) string {
	if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok {
		return claims.Subject
	}
	return ""
}

func auditEntry(r *http.Request, action, resourceType, resourceID string, meta map[string]interface{}) audit.Entry {
	return audit.Entry{
		Actor:        actor(r),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     meta,
		IPAddress:    middleware.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
}
