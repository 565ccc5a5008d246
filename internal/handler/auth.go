package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jk-7-dev/event-manager/internal/model"
	"github.com/jk-7-dev/event-manager/internal/service"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	svc *service.AuthService
	log *zap.Logger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(svc *service.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: log}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user data: "+err.Error())
		return
	}

	res, err := h.svc.Register(r.Context(), req)
	if err != nil {
		respondErr(w, r, h.log, "User not found", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid credentials payload: "+err.Error())
		return
	}

	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		respondErr(w, r, h.log, "User not found", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
