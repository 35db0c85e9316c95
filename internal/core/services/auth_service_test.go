package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpulse/classpulse-backend/internal/core/domain"
	apperrors "github.com/classpulse/classpulse-backend/internal/core/errors"
)

type stubUserRepo struct {
	users map[string]*domain.User
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if u, ok := r.users[email]; ok {
		return u, nil
	}
	return nil, apperrors.ErrUserNotFound
}

func newStubRepo(t *testing.T) *stubUserRepo {
	t.Helper()
	hash, err := domain.HashPassword("Str0ngPass")
	require.NoError(t, err)

	return &stubUserRepo{users: map[string]*domain.User{
		"teacher@school.test": {
			ID:           uuid.New(),
			SchoolID:     uuid.New(),
			Email:        "teacher@school.test",
			Role:         domain.RoleTeacher,
			PasswordHash: hash,
		},
	}}
}

func TestAuthService_Login(t *testing.T) {
	svc := NewAuthService(newStubRepo(t))

	user, err := svc.Login(context.Background(), "teacher@school.test", "Str0ngPass")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeacher, user.Role)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	svc := NewAuthService(newStubRepo(t))

	_, err := svc.Login(context.Background(), "teacher@school.test", "nope")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestAuthService_Login_UnknownEmailDoesNotLeak(t *testing.T) {
	svc := NewAuthService(newStubRepo(t))

	_, err := svc.Login(context.Background(), "ghost@school.test", "whatever")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials,
		"unknown email must look like bad credentials")
}

func TestAuthService_Login_EmptyFields(t *testing.T) {
	svc := NewAuthService(newStubRepo(t))

	_, err := svc.Login(context.Background(), "", "pw")
	assert.ErrorIs(t, err, apperrors.ErrEmailRequired)

	_, err = svc.Login(context.Background(), "teacher@school.test", "")
	assert.ErrorIs(t, err, apperrors.ErrPasswordRequired)
}
