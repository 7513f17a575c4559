package handlers

import (
	"net/http"

	"keyhub/internal/engine/licensing"
	"keyhub/internal/pkg/errors"
)

type StatsHandler struct {
	keystore *licensing.Keystore
}

func NewStatsHandler(keystore *licensing.Keystore) *StatsHandler {
	return &StatsHandler{keystore: keystore}
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.keystore.Stats(r.Context())
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"keys": map[string]int{
			"total":   stats.Total,
			"active":  stats.Active,
			"expired": stats.Expired,
			"used":    stats.Used,
		},
		"scripts": map[string]int{
			"total":      stats.Scripts,
			"executions": stats.Executions,
			"downloads":  stats.Downloads,
		},
		"users": map[string]int{
			"blacklisted": stats.Blacklisted,
		},
		"system": map[string]string{
			"status": "online",
		},
	})
}
