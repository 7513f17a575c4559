package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"keyhub/internal/engine/webhooks"
	"keyhub/internal/pkg/errors"
)

const maxWebhookBody = 1 << 20

// WebhookHandler accepts deployment notifications from the hosting platform.
// Payloads are logged and otherwise ignored. With no secret configured the
// signature check is skipped.
type WebhookHandler struct {
	secret string
}

func NewWebhookHandler(secret string) *WebhookHandler {
	return &WebhookHandler{secret: secret}
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Failed to read body", nil)
		return
	}

	if h.secret != "" && !webhooks.Verify(h.secret, body, r.Header.Get(webhooks.SignatureHeader)) {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid signature", nil)
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid JSON payload", nil)
		return
	}

	log.Info().Interface("payload", payload).Msg("webhook received")
	errors.WriteJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
