package handlers

import (
	"fmt"
	"net/http"
	"time"

	apiContext "keyhub/internal/api/context"
	"keyhub/internal/engine/licensing"
	"keyhub/internal/pkg/errors"
	"keyhub/internal/platform/metrics"
)

// SelfServiceHandler backs the bot's user panel. SelfServiceMiddleware has
// already validated the user and checked the blacklist.
type SelfServiceHandler struct {
	keystore *licensing.Keystore
	metrics  *metrics.Metrics
}

func NewSelfServiceHandler(keystore *licensing.Keystore, m *metrics.Metrics) *SelfServiceHandler {
	return &SelfServiceHandler{keystore: keystore, metrics: m}
}

func (h *SelfServiceHandler) Key(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(apiContext.UserID).(string)

	rec, err := h.keystore.GetOrCreateForUser(r.Context(), userID)
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}
	errors.WriteJSON(w, http.StatusOK, rec)
}

func (h *SelfServiceHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(apiContext.UserID).(string)

	rec, err := h.keystore.ResetForUser(r.Context(), userID)
	countReset(h.metrics, "self", err)
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}

	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "HWID reset successfully. You can reset again in " + spell(h.keystore.ResetCooldown()) + ".",
		"key":     rec.Key,
	})
}

type cooldownResponse struct {
	Active           bool `json:"active"`
	RemainingSeconds int  `json:"remaining_seconds"`
	Hours            int  `json:"hours"`
	Minutes          int  `json:"minutes"`
}

func (h *SelfServiceHandler) Cooldown(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(apiContext.UserID).(string)

	remaining, err := h.keystore.CooldownRemaining(r.Context(), userID)
	if err != nil {
		writeKeystoreError(w, r, err)
		return
	}

	cd := &licensing.CooldownError{Remaining: remaining}
	hours, minutes := cd.Parts()
	errors.WriteJSON(w, http.StatusOK, cooldownResponse{
		Active:           remaining > 0,
		RemainingSeconds: int(remaining.Seconds()),
		Hours:            hours,
		Minutes:          minutes,
	})
}

// spell renders d as whole hours or minutes where it divides evenly.
func spell(d time.Duration) string {
	unit := func(n int64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return unit(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return unit(int64(d/time.Minute), "minute")
	default:
		return d.Round(time.Second).String()
	}
}
