package main

import (
	"encoding/json"
	"net/http"

	"github.com/rjsadow/rfbgo/internal/auth"
	"github.com/rjsadow/rfbgo/internal/db"
)

// authHandlers serves the gateway's own operator login endpoints, distinct
// from any credentials the operator later supplies for a remote RFB server.
type authHandlers struct {
	provider          *auth.Provider
	database          *db.DB
	allowRegistration bool
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Username     string `json:"username"`
}

func (h *authHandlers) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	result, err := h.provider.LoginWithCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	writeLoginResponse(w, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *authHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		http.Error(w, "refresh_token is required", http.StatusBadRequest)
		return
	}

	result, err := h.provider.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	writeLoginResponse(w, result)
}

func writeLoginResponse(w http.ResponseWriter, result *auth.LoginResult) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
		Username:     result.Identity.Username,
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// register handles POST /api/auth/register. Unless the operator has opted
// in via RFBGO_ALLOW_REGISTRATION it answers 403 Forbidden, and every
// operator account must be provisioned by an existing admin.
func (h *authHandlers) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.allowRegistration {
		http.Error(w, "self-registration is disabled on this gateway", http.StatusForbidden)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	existing, err := h.database.GetUserByUsername(req.Username)
	if err != nil {
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "username already taken", http.StatusConflict)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}
	if err := h.database.CreateUser(&db.User{
		ID:           req.Username,
		Username:     req.Username,
		PasswordHash: hash,
		Roles:        db.StringSlice{"operator"},
	}); err != nil {
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}

	result, err := h.provider.LoginWithCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, "registered but login failed", http.StatusInternalServerError)
		return
	}
	writeLoginResponse(w, result)
}
