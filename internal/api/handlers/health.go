package handlers

import (
	"context"
	"net/http"
	"time"

	"keyhub/internal/pkg/errors"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	storage Pinger
	driver  string
}

func NewHealthHandler(storage Pinger, driver string) *HealthHandler {
	return &HealthHandler{storage: storage, driver: driver}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	if err := h.storage.Ping(ctx); err != nil {
		checks["storage"] = "unhealthy: " + err.Error()
		status = "degraded"
	} else {
		checks["storage"] = "healthy"
	}

	response := struct {
		Status    string            `json:"status"`
		Service   string            `json:"service"`
		Driver    string            `json:"driver"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Service:   "keyhub",
		Driver:    h.driver,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	errors.WriteJSON(w, statusCode, response)
}
