package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"keyhub/internal/api/middleware"
	"keyhub/internal/pkg/errors"
	"keyhub/internal/platform/auth"
	"keyhub/internal/platform/config"
)

type AuthHandler struct {
	admin    config.AdminConfig
	tokenSvc *auth.TokenService
}

func NewAuthHandler(admin config.AdminConfig, tokenSvc *auth.TokenService) *AuthHandler {
	return &AuthHandler{admin: admin, tokenSvc: tokenSvc}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.admin.Username)) == 1
	passErr := auth.CheckPassword(h.admin.PasswordHash, req.Password)
	if !userOK || passErr != nil {
		log.Warn().Str("username", req.Username).Str("ip", middleware.ClientIP(r)).Msg("failed login")
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid username or password", nil)
		return
	}

	token, err := h.tokenSvc.GenerateAccessToken(req.Username, auth.RoleAdmin)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue access token")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to issue token", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, LoginResponse{AccessToken: token, TokenType: "Bearer"})
}
