package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/classpulse/classpulse-backend/internal/adapters/primary/http/middleware"
	"github.com/classpulse/classpulse-backend/internal/auth"
	"github.com/classpulse/classpulse-backend/internal/core/domain"
	apperrors "github.com/classpulse/classpulse-backend/internal/core/errors"
)

// stubAuthService returns a fixed user for the right credentials.
type stubAuthService struct {
	user     *domain.User
	password string
}

func (s *stubAuthService) Login(_ context.Context, email, password string) (*domain.User, error) {
	if email == "" {
		return nil, apperrors.ErrEmailRequired
	}
	if password == "" {
		return nil, apperrors.ErrPasswordRequired
	}
	if s.user == nil || email != s.user.Email || password != s.password {
		return nil, apperrors.ErrInvalidCredentials
	}
	return s.user, nil
}

func newAuthRouter(t *testing.T, svc *stubAuthService) (*chi.Mux, *auth.TokenManager) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	errorHandler := NewErrorHandler(logger)
	tokenManager := auth.NewTokenManager("test-secret-key-for-handler-tests", time.Hour)
	handler := NewAuthHandler(svc, tokenManager, errorHandler, logger)

	router := chi.NewRouter()
	router.Route("/auth", handler.RegisterRoutes)
	router.Group(func(r chi.Router) {
		r.Use(mw.JWTMiddleware(tokenManager))
		r.Get("/auth/me", handler.HandleMe)
	})

	return router, tokenManager
}

func seedLoginUser(t *testing.T) *domain.User {
	t.Helper()
	return &domain.User{
		ID:       uuid.New(),
		SchoolID: uuid.New(),
		Name:     "Pat Teacher",
		Email:    "pat@example.com",
		Role:     domain.RoleTeacher,
	}
}

func TestHandleLogin_Success(t *testing.T) {
	user := seedLoginUser(t)
	router, _ := newAuthRouter(t, &stubAuthService{user: user, password: "Password1"})

	body := `{"email":"pat@example.com","password":"Password1"}`
	req := httptest.NewRequest(stdhttp.MethodPost, "/auth/login", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, req)

	require.Equal(t, stdhttp.StatusOK, recorder.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	assert.NotEmpty(t, resp["token"])
	assert.Equal(t, user.ID.String(), resp["userId"])
	assert.Equal(t, user.SchoolID.String(), resp["schoolId"])
	assert.Equal(t, "teacher", resp["role"])
}

func TestHandleLogin_WrongPassword(t *testing.T) {
	user := seedLoginUser(t)
	router, _ := newAuthRouter(t, &stubAuthService{user: user, password: "Password1"})

	body := `{"email":"pat@example.com","password":"wrong"}`
	req := httptest.NewRequest(stdhttp.MethodPost, "/auth/login", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, req)

	require.Equal(t, stdhttp.StatusUnauthorized, recorder.Code)
}

func TestHandleLogin_MissingFields(t *testing.T) {
	router, _ := newAuthRouter(t, &stubAuthService{})

	body := `{"email":"","password":""}`
	req := httptest.NewRequest(stdhttp.MethodPost, "/auth/login", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, req)

	require.Equal(t, stdhttp.StatusBadRequest, recorder.Code)
}

func TestHandleMe_ReturnsTokenIdentity(t *testing.T) {
	user := seedLoginUser(t)
	router, tokenManager := newAuthRouter(t, &stubAuthService{user: user, password: "Password1"})

	token, err := tokenManager.GenerateToken(user)
	require.NoError(t, err)

	req := httptest.NewRequest(stdhttp.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, req)

	require.Equal(t, stdhttp.StatusOK, recorder.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&resp))
	assert.Equal(t, user.ID.String(), resp["userId"])
	assert.Equal(t, user.SchoolID.String(), resp["schoolId"])
	assert.Equal(t, "teacher", resp["role"])
}

func TestHandleMe_Unauthorized(t *testing.T) {
	router, _ := newAuthRouter(t, &stubAuthService{})

	req := httptest.NewRequest(stdhttp.MethodGet, "/auth/me", nil)
	recorder := httptest.NewRecorder()

	router.ServeHTTP(recorder, req)

	require.Equal(t, stdhttp.StatusUnauthorized, recorder.Code)
}
