package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	apiContext "keyhub/internal/api/context"
	"keyhub/internal/engine/licensing"
	"keyhub/internal/pkg/errors"
	"keyhub/internal/pkg/validator"
	"keyhub/internal/platform/audit"
	"keyhub/internal/platform/metrics"
)

const maxExpiryDays = 3650

type KeyHandler struct {
	keystore *licensing.Keystore
	audit    *audit.Logger
	metrics  *metrics.Metrics
	nowFn    func() time.Time
}

func NewKeyHandler(keystore *licensing.Keystore, auditLogger *audit.Logger, m *metrics.Metrics) *KeyHandler {
	return &KeyHandler{keystore: keystore, audit: auditLogger, metrics: m, nowFn: time.Now}
}

type CreateKeyRequest struct {
	Type          string `json:"type"`
	ExpiresInDays int    `json:"expires_in_days"`
	ExpiresAt     *int64 `json:"expires_at"`
	Owner         string `json:"owner"`
}

// toParams checks the request shape. Temporary keys need an expiry in the
// future; permanent keys must not carry one.
func (req CreateKeyRequest) toParams(now time.Time) (licensing.GenerateParams, string) {
	typ, err := licensing.ParseKeyType(req.Type)
	if err != nil {
		return licensing.GenerateParams{}, "Key type must be permanent or temporary"
	}
	if req.Owner != "" {
		if err := validator.ValidateUserID(req.Owner); err != nil {
			return licensing.GenerateParams{}, err.Error()
		}
	}
	if req.ExpiresInDays < 0 || req.ExpiresInDays > maxExpiryDays {
		return licensing.GenerateParams{}, "expires_in_days is out of range"
	}

	p := licensing.GenerateParams{Type: typ, Owner: req.Owner}
	switch {
	case req.ExpiresAt != nil:
		exp := *req.ExpiresAt
		p.ExpiresAt = &exp
	case req.ExpiresInDays > 0:
		exp := now.Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour).Unix()
		p.ExpiresAt = &exp
	}

	if typ == licensing.KeyTypePermanent && p.ExpiresAt != nil {
		return licensing.GenerateParams{}, "Permanent keys cannot expire"
	}
	if typ == licensing.KeyTypeTemporary {
		if p.ExpiresAt == nil {
			return licensing.GenerateParams{}, "Temporary keys need expires_in_days or expires_at"
		}
		if *p.ExpiresAt <= now.Unix() {
			return licensing.GenerateParams{}, "expires_at must be in the future"
		}
	}
	return p, ""
}

func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	params, problem := req.toParams(h.nowFn())
	if problem != "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, problem, nil)
		return
	}
	params.CreatedBy = actor(r)

	rec, err := h.keystore.Generate(r.Context(), params)
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.KeysIssued.WithLabelValues(string(rec.Type), "admin").Inc()
	}
	h.audit.Log(r.Context(), auditEntry(r, audit.ActionKeyGenerated, audit.ResourceKey, rec.Key, map[string]interface{}{
		"type":       rec.Type,
		"owner":      rec.Owner,
		"expires_at": rec.ExpiresAt,
	}))

	errors.WriteJSON(w, http.StatusCreated, rec)
}

func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keystore.ListKeys(r.Context())
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}
	if keys == nil {
		keys = []licensing.KeyRecord{}
	}

	if owner := r.URL.Query().Get("owner"); owner != "" {
		filtered := []licensing.KeyRecord{}
		for _, k := range keys {
			if k.Owner == owner {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
	}

	errors.WriteJSON(w, http.StatusOK, keys)
}

func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	rec, err := h.keystore.Status(r.Context(), params.ByName("key"))
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, rec)
}

func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	key := params.ByName("key")

	if err := h.keystore.Delete(r.Context(), key); err != nil {
		writeKeystoreError(w, r, err)
		return
	}
	h.audit.Log(r.Context(), auditEntry(r, audit.ActionKeyDeleted, audit.ResourceKey, key, nil))

	w.WriteHeader(http.StatusNoContent)
}

// Reset clears the binding of one key. Staff resets skip the cooldown.
func (h *KeyHandler) Reset(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	key := params.ByName("key")

	h.reset(w, r, key)
}

// ResetByBody is Reset with the key in a {"key": ...} body, for clients of
// the old POST /reset endpoint.
func (h *KeyHandler) ResetByBody(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Missing key", nil)
		return
	}
	h.reset(w, r, req.Key)
}

func (h *KeyHandler) reset(w http.ResponseWriter, r *http.Request, key string) {
	rec, err := h.keystore.Reset(r.Context(), key)
	countReset(h.metrics, "key", err)
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}
	h.audit.Log(r.Context(), auditEntry(r, audit.ActionKeyReset, audit.ResourceKey, rec.Key, nil))

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "HWID reset successfully",
		"key":     rec,
	})
}

// ResetOwner resets the key owned by :user_id without starting a cooldown.
func (h *KeyHandler) ResetOwner(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)
	userID := params.ByName("user_id")

	if err := validator.ValidateUserID(userID); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	rec, err := h.keystore.ResetForOwner(r.Context(), userID)
	countReset(h.metrics, "owner", err)
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}
	h.audit.Log(r.Context(), auditEntry(r, audit.ActionOwnerReset, audit.ResourceUser, userID, map[string]interface{}{
		"key": rec.Key,
	}))

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "HWID reset successfully",
		"key":     rec,
	})
}

func countReset(m *metrics.Metrics, path string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
		if !licensing.IsRejection(err) {
			outcome = "error"
		}
	}
	m.Resets.WithLabelValues(path, outcome).Inc()
}
