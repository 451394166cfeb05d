package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

type TokenIssuer interface {
	GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error)
}

type AuthHandler struct {
	service TokenIssuer
	logger  *zap.Logger
}

func NewAuthHandler(s TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: s, logger: logger.Named("auth-handler")}
}

// Login — POST /auth/token (публичный эндпоинт операторской консоли)
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	token, err := h.service.GenerateToken(r.Context(), req.Username, req.Password)
	if err != nil {
		// Детали не раскрываем: «нет такого пользователя» и «неверный
		// пароль» снаружи неразличимы
		h.logger.Warn("login rejected", zap.String("username", req.Username))
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(token)
}
