// Package server exposes the HTTP handlers: WebSocket upgrades, health
// checks, and the signup/login account endpoints.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/whisperwire/whisperwire/internal/store"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type apiResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Username string `json:"username,omitempty"`
}

// WebSocketHandler upgrades the HTTP connection and hands the client to the
// hub, which launches its read/write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr)

	select {
	case s.hub.register <- client:
	case <-s.hub.ctx.Done():
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Whisperwire server is running!")
}

// SignupHandler creates a new account. Mirrors the validation the web client
// expects: username at least 3 characters, password at least 6, 409 when the
// username is taken.
func (s *Server) SignupHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	if len(req.Username) < minUsernameLen || len(req.Password) < minPasswordLen {
		writeJSON(w, http.StatusBadRequest, apiResponse{
			Message: "Username (min 3) and Password (min 6) are required.",
		})
		return
	}

	err := s.creds.CreateUser(r.Context(), req.Username, req.Password)
	if errors.Is(err, store.ErrDuplicateUser) {
		writeJSON(w, http.StatusConflict, apiResponse{Message: "User already exists"})
		return
	}
	if err != nil {
		s.log.Error("signup", zap.String("username", req.Username), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiResponse{Message: "Server error during signup."})
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "User registered successfully"})
}

// LoginHandler verifies credentials against the credential store.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{
			Message: "Username and password are required.",
		})
		return
	}

	valid, err := s.creds.VerifyCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		s.log.Error("login", zap.String("username", req.Username), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apiResponse{Message: "Server error during login."})
		return
	}
	if !valid {
		writeJSON(w, http.StatusUnauthorized, apiResponse{Message: "Invalid username or password"})
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Success:  true,
		Message:  "Login successful",
		Username: req.Username,
	})
}

func (s *Server) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiResponse{Message: "Method not allowed"})
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Message: "Invalid request body"})
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
