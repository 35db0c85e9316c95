package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/classpulse/classpulse-backend/internal/adapters/primary/http/middleware"
	"github.com/classpulse/classpulse-backend/internal/auth"
	apperrors "github.com/classpulse/classpulse-backend/internal/core/errors"
	"github.com/classpulse/classpulse-backend/internal/core/ports"
)

// AuthHandler issues the bearer tokens that both the REST middleware and the
// websocket handshake verify.
type AuthHandler struct {
	authService  ports.AuthService
	tokenManager *auth.TokenManager
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService ports.AuthService,
	tokenManager *auth.TokenManager,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		tokenManager: tokenManager,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// RegisterRoutes registers auth routes on the given router
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.HandleLogin)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"userId"`
	SchoolID string `json:"schoolId,omitempty"`
	Role     string `json:"role"`
}

// HandleLogin authenticates the user and returns a signed access token.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}

	user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	token, err := h.tokenManager.GenerateToken(user)
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewInternalError(err))
		return
	}

	schoolID := ""
	if user.Role.HasTenant() {
		schoolID = user.SchoolID.String()
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:    token,
		UserID:   user.ID.String(),
		SchoolID: schoolID,
		Role:     string(user.Role),
	})
}

// HandleMe returns the identity carried by the presented token.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.GetClaims(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.NewUnauthorizedError("Authentication required"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"userId":   claims.UserID.String(),
		"schoolId": claims.SchoolID,
		"role":     string(claims.Role),
	})
}
