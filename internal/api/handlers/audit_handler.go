package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"keyhub/internal/pkg/errors"
	"keyhub/internal/platform/audit"
)

type AuditHandler struct {
	audit *audit.Logger
}

func NewAuditHandler(auditLogger *audit.Logger) *AuditHandler {
	return &AuditHandler{audit: auditLogger}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to load audit log")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load audit log", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, entries)
}
