package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apiContext "keyhub/internal/api/context"
	"keyhub/internal/platform/auth"
	"keyhub/internal/platform/config"
)

func TestAuthMiddleware(t *testing.T) {
	svc := auth.NewTokenService(config.JWTConfig{Secret: "s3cret", Issuer: "keyhub", AccessTokenTTL: time.Hour})
	adminToken, _ := svc.GenerateAccessToken("admin", auth.RoleAdmin)
	botToken, _ := svc.GenerateServiceToken("bot", auth.RoleBot, 0)

	mw := NewAuthMiddleware(svc)
	adminOnly := mw.Handle(RequireRole(auth.RoleAdmin)(func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
		if claims.Subject != "admin" {
			t.Errorf("Expected subject admin, got %s", claims.Subject)
		}
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"admin token", "Bearer " + adminToken, http.StatusOK},
		{"bot token", "Bearer " + botToken, http.StatusForbidden},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/keys", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			adminOnly.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("got status %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
