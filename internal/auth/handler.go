package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Handler exposes the token exchange endpoint and the bearer middleware.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the token endpoint. It is the one auth route
// that must work without a bearer token.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/token", h.handleToken)
}

// Middleware returns the bearer token check for API routes.
func (h *Handler) Middleware() func(http.Handler) http.Handler {
	return AuthMiddleware(h.service.Tokens())
}

type tokenRequest struct {
	APIKey string `json:"api_key"`
}

// TokenResponse is the body of a successful token exchange.
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// handleToken trades a configured API key for a signed access token.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.APIKey == "" {
		writeAuthError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	client, err := h.service.Authenticate(req.APIKey)
	switch {
	case errors.Is(err, ErrInvalidKey):
		h.logger.Warn("token exchange rejected", zap.String("remote", r.RemoteAddr))
		writeAuthError(w, http.StatusUnauthorized, "invalid API key")
		return
	case err != nil:
		writeAuthError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	token, err := h.service.Tokens().IssueToken(client)
	if err != nil {
		h.logger.Error("issue token", zap.Error(err))
		writeAuthError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(h.service.Tokens().TTL().Seconds()),
	})
}

func writeAuthError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://driftwatch.dev/problems/auth-error",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
