package middleware

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "keyhub/internal/api/context"
	"keyhub/internal/engine/licensing"
	"keyhub/internal/pkg/errors"
	"keyhub/internal/pkg/validator"
)

// SelfServiceMiddleware resolves the chat user a bot request acts for. It
// rejects malformed ids and blacklisted users before any handler runs.
type SelfServiceMiddleware struct {
	keystore *licensing.Keystore
}

func NewSelfServiceMiddleware(keystore *licensing.Keystore) *SelfServiceMiddleware {
	return &SelfServiceMiddleware{keystore: keystore}
}

func (m *SelfServiceMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
		userID := params.ByName("user_id")

		if err := validator.ValidateUserID(userID); err != nil {
			errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
			return
		}

		listed, err := m.keystore.IsBlacklisted(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("blacklist lookup failed")
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load user", nil)
			return
		}
		if listed {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeBlacklisted, "User is blacklisted", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.UserID, userID)
		next(w, r.WithContext(ctx))
	}
}
