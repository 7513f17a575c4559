package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	apiContext "keyhub/internal/api/context"
	"keyhub/internal/engine/licensing"
	"keyhub/internal/pkg/errors"
	"keyhub/internal/pkg/validator"
	"keyhub/internal/platform/metrics"
)

// VerifyHandler serves the loader-facing endpoints. Responses keep the
// {success, message} shape the clients already parse.
type VerifyHandler struct {
	keystore *licensing.Keystore
	metrics  *metrics.Metrics
}

func NewVerifyHandler(keystore *licensing.Keystore, m *metrics.Metrics) *VerifyHandler {
	return &VerifyHandler{keystore: keystore, metrics: m}
}

type verifyResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Code       string            `json:"code,omitempty"`
	Type       licensing.KeyType `json:"type,omitempty"`
	ExpiresAt  *int64            `json:"expires_at,omitempty"`
	NewlyBound bool              `json:"newly_bound,omitempty"`
}

func (h *VerifyHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.verify(w, r, q.Get("key"), q.Get("hwid"))
}

func (h *VerifyHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key  string `json:"key"`
		HWID string `json:"hwid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	h.verify(w, r, req.Key, req.HWID)
}

func (h *VerifyHandler) verify(w http.ResponseWriter, r *http.Request, key, hwid string) {
	if strings.TrimSpace(hwid) != "" {
		if err := validator.ValidateHWID(hwid); err != nil {
			h.count("invalid_input")
			errors.WriteJSON(w, http.StatusBadRequest, verifyResponse{Message: err.Error(), Code: errors.ErrCodeInvalidInput})
			return
		}
	}

	res, err := h.keystore.Verify(r.Context(), key, hwid)
	if err != nil {
		o := classify(err)
		h.count(strings.ToLower(o.code))
		if o.status >= http.StatusInternalServerError {
			writeKeystoreError(w, r, err)
			return
		}
		errors.WriteJSON(w, o.status, verifyResponse{Message: o.message, Code: o.code})
		return
	}

	h.count("accepted")
	errors.WriteJSON(w, http.StatusOK, verifyResponse{
		Success:    true,
		Message:    "Key verified successfully",
		Type:       res.Type,
		ExpiresAt:  res.ExpiresAt,
		NewlyBound: res.NewlyBound,
	})
}

func (h *VerifyHandler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.Verifications.WithLabelValues(outcome).Inc()
	}
}

type statusResponse struct {
	Success     bool              `json:"success"`
	HWID        *string           `json:"hwid"`
	CreatedAt   int64             `json:"created_at"`
	CreatedAtMs int64             `json:"createdAt"`
	Temp        bool              `json:"temp"`
	Type        licensing.KeyType `json:"type"`
	ExpiresAt   *int64            `json:"expires_at"`
	Used        bool              `json:"used"`
}

// Status is the public lookup used by the loader to show key details.
func (h *VerifyHandler) Status(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	rec, err := h.keystore.Status(r.Context(), params.ByName("key"))
	if err != nil {
		o := classify(err)
		if o.status >= http.StatusInternalServerError {
			writeKeystoreError(w, r, err)
			return
		}
		errors.WriteJSON(w, o.status, verifyResponse{Message: o.message, Code: o.code})
		return
	}

	resp := statusResponse{
		Success:     true,
		CreatedAt:   rec.CreatedAt,
		CreatedAtMs: rec.CreatedAt * 1000,
		Temp:        rec.Type == licensing.KeyTypeTemporary,
		Type:        rec.Type,
		ExpiresAt:   rec.ExpiresAt,
		Used:        rec.Used,
	}
	if rec.Bound() {
		resp.HWID = &rec.HWID
	}
	errors.WriteJSON(w, http.StatusOK, resp)
}
