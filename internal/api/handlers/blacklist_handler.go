package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "keyhub/internal/api/context"
	"keyhub/internal/engine/licensing"
	"keyhub/internal/pkg/errors"
	"keyhub/internal/pkg/validator"
	"keyhub/internal/platform/audit"
)

type BlacklistHandler struct {
	keystore *licensing.Keystore
	audit    *audit.Logger
}

func NewBlacklistHandler(keystore *licensing.Keystore, auditLogger *audit.Logger) *BlacklistHandler {
	return &BlacklistHandler{keystore: keystore, audit: auditLogger}
}

func (h *BlacklistHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.keystore.Blacklist(r.Context())
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}
	if entries == nil {
		entries = []licensing.BlacklistEntry{}
	}
	errors.WriteJSON(w, http.StatusOK, entries)
}

// Put blacklists :user_id. The body is optional.
func (h *BlacklistHandler) Put(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	userID := params.ByName("user_id")

	if err := validator.ValidateUserID(userID); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	entry, err := h.keystore.BlacklistUser(r.Context(), userID, req.Reason, actor(r))
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}
	h.audit.Log(r.Context(), auditEntry(r, audit.ActionUserBlacklist, audit.ResourceUser, userID, map[string]interface{}{
		"reason": entry.Reason,
	}))

	errors.WriteJSON(w, http.StatusOK, entry)
}

func (h *BlacklistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	userID := params.ByName("user_id")

	if err := h.keystore.UnblacklistUser(r.Context(), userID); err != nil {
		writeKeystoreError(w, r, err)
		return
	}
	h.audit.Log(r.Context(), auditEntry(r, audit.ActionUserWhitelist, audit.ResourceUser, userID, nil))

	w.WriteHeader(http.StatusNoContent)
}
