package api

import (
	"encoding/json"
	"net/http"
	"time"

	"pidrive-backend/internal/auth"
	"pidrive-backend/internal/fault"
	"pidrive-backend/internal/models"
)

type AuthHandler struct {
	accounts   *auth.Table
	jwtManager *auth.JWTManager
	expiry     time.Duration
}

func NewAuthHandler(accounts *auth.Table, jwtManager *auth.JWTManager, expiry time.Duration) *AuthHandler {
	return &AuthHandler{
		accounts:   accounts,
		jwtManager: jwtManager,
		expiry:     expiry,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	account, err := h.accounts.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := h.jwtManager.Generate(account.Name, req.Password)
	if err != nil {
		writeError(w, fault.Wrap(fault.CodeAuthentication, "failed to generate token", err))
		return
	}

	writeJSON(w, http.StatusOK, models.LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.expiry).Unix(),
	})
}
