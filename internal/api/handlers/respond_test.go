package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyhub/internal/engine/licensing"
	"keyhub/internal/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{licensing.ErrMissingCredentials, http.StatusBadRequest, errors.ErrCodeMissingCredentials},
		{licensing.ErrInvalidKey, http.StatusUnauthorized, errors.ErrCodeInvalidKey},
		{licensing.ErrExpired, http.StatusUnauthorized, errors.ErrCodeExpired},
		{licensing.ErrHwidMismatch, http.StatusUnauthorized, errors.ErrCodeHwidMismatch},
		{licensing.ErrBlacklisted, http.StatusForbidden, errors.ErrCodeBlacklisted},
		{licensing.ErrScriptNotFound, http.StatusNotFound, errors.ErrCodeNotFound},
		{fmt.Errorf("%w: name is required", licensing.ErrInvalidScript), http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{licensing.ErrNoKeyFound, http.StatusNotFound, errors.ErrCodeNoKeyFound},
		{&licensing.CooldownError{Remaining: time.Hour}, http.StatusTooManyRequests, errors.ErrCodeCooldownActive},
		{licensing.ErrNotFound, http.StatusNotFound, errors.ErrCodeNotFound},
		{licensing.ErrNotBlacklisted, http.StatusNotFound, errors.ErrCodeNotBlacklisted},
		{licensing.ErrInvalidKeyType, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{licensing.ErrDuplicateKey, http.StatusConflict, errors.ErrCodeConflict},
		{fmt.Errorf("%w: disk full", licensing.ErrStorageUnavailable), http.StatusInternalServerError, errors.ErrCodeInternal},
		{stderrors.New("anything else"), http.StatusInternalServerError, errors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			o := classify(tt.err)
			assert.Equal(t, tt.status, o.status)
			assert.Equal(t, tt.code, o.code)
			assert.NotEmpty(t, o.message)
		})
	}
}

func TestWriteKeystoreError_CooldownDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/self/1/reset", nil)

	writeKeystoreError(rr, req, &licensing.CooldownError{Remaining: 23*time.Hour + 59*time.Minute + 30*time.Second})

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	var resp struct {
		Code    string         `json:"code"`
		Details map[string]int `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrCodeCooldownActive, resp.Code)
	assert.Equal(t, 23, resp.Details["hours"])
	assert.Equal(t, 59, resp.Details["minutes"])
	assert.Equal(t, 86370, resp.Details["remaining_seconds"])
}

func TestCreateKeyRequest_ToParams(t *testing.T) {
	now := time.Unix(1700000000, 0)

	p, problem := CreateKeyRequest{Type: "temporary", ExpiresInDays: 2, Owner: "77"}.toParams(now)
	require.Empty(t, problem)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, int64(1700000000+2*86400), *p.ExpiresAt)
	assert.Equal(t, "77", p.Owner)

	p, problem = CreateKeyRequest{Type: "permanent"}.toParams(now)
	require.Empty(t, problem)
	assert.Nil(t, p.ExpiresAt)

	_, problem = CreateKeyRequest{Type: "temporary", ExpiresInDays: maxExpiryDays + 1}.toParams(now)
	assert.NotEmpty(t, problem)
}

func TestWebhook_UnsignedWhenNoSecret(t *testing.T) {
	h := NewWebhookHandler("")
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(`{"event":"deploy"}`))

	h.Receive(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.Receive(rr, httptest.NewRequest("POST", "/webhook", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSpell(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{24 * time.Hour, "24 hours"},
		{time.Hour, "1 hour"},
		{90 * time.Minute, "90 minutes"},
		{time.Minute, "1 minute"},
		{45 * time.Second, "45s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, spell(tt.d), tt.d.String())
	}
}
