package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	apiContext "keyhub/internal/api/context"
	"keyhub/internal/engine/licensing"
	"keyhub/internal/pkg/errors"
	"keyhub/internal/platform/audit"
	"keyhub/internal/platform/metrics"
)

// ScriptHandler serves the script catalogue. Upload and List are staff
// endpoints; Fetch and Execute are called by the loader and only count.
type ScriptHandler struct {
	keystore *licensing.Keystore
	audit    *audit.Logger
	metrics  *metrics.Metrics
}

func NewScriptHandler(keystore *licensing.Keystore, auditLogger *audit.Logger, m *metrics.Metrics) *ScriptHandler {
	return &ScriptHandler{keystore: keystore, audit: auditLogger, metrics: m}
}

type UploadScriptRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
}

func (h *ScriptHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req UploadScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	owner := req.Owner
	if owner == "" {
		owner = actor(r)
	}

	sc, err := h.keystore.UploadScript(r.Context(), licensing.UploadParams{
		Name:        req.Name,
		Description: req.Description,
		Owner:       owner,
	})
	if stderrors.Is(err, licensing.ErrInvalidScript) {
		msg := strings.TrimPrefix(err.Error(), licensing.ErrInvalidScript.Error()+": ")
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, msg, nil)
		return
	}
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}

	h.audit.Log(r.Context(), auditEntry(r, audit.ActionScriptUploaded, audit.ResourceScript, sc.ID, map[string]interface{}{
		"name":  sc.Name,
		"owner": sc.Owner,
	}))
	errors.WriteJSON(w, http.StatusCreated, sc)
}

func (h *ScriptHandler) List(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.keystore.ListScripts(r.Context())
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}
	if scripts == nil {
		scripts = []licensing.Script{}
	}
	errors.WriteJSON(w, http.StatusOK, scripts)
}

type scriptResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Script  *licensing.Script `json:"script,omitempty"`
}

// Fetch returns the catalogue entry and counts a download.
func (h *ScriptHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	sc, err := h.keystore.DownloadScript(r.Context(), params.ByName("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.count("download")
	errors.WriteJSON(w, http.StatusOK, scriptResponse{Success: true, Script: &sc})
}

// Execute counts one run of the script.
func (h *ScriptHandler) Execute(w http.ResponseWriter, r *http.Request) {
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	if _, err := h.keystore.RecordExecution(r.Context(), params.ByName("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.count("execution")
	errors.WriteJSON(w, http.StatusOK, scriptResponse{Success: true, Message: "Script execution logged"})
}

func (h *ScriptHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	o := classify(err)
	if o.status >= http.StatusInternalServerError {
		writeKeystoreError(w, r, err)
		return
	}
	errors.WriteJSON(w, o.status, scriptResponse{Message: o.message})
}

func (h *ScriptHandler) count(event string) {
	if h.metrics != nil {
		h.metrics.ScriptEvents.WithLabelValues(event).Inc()
	}
}
