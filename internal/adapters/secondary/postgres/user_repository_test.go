package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpulse/classpulse-backend/internal/core/domain"
	apperrors "github.com/classpulse/classpulse-backend/internal/core/errors"
)

// seedSchool inserts a school row and returns its id.
func seedSchool(t *testing.T, name string) uuid.UUID {
	t.Helper()
	require.NotNil(t, testPool, "testPool is nil. TestMain may not have run.")

	id := uuid.New()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO schools (id, name) VALUES ($1, $2)`, id, name)
	require.NoError(t, err, "Failed to seed school")
	return id
}

// seedUser inserts a user row and returns its id. schoolID may be uuid.Nil
// for superadmins.
func seedUser(t *testing.T, schoolID uuid.UUID, email string, role domain.Role) uuid.UUID {
	t.Helper()
	require.NotNil(t, testPool, "testPool is nil. TestMain may not have run.")

	id := uuid.New()
	var school any
	if schoolID != uuid.Nil {
		school = schoolID
	}
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO users (id, school_id, name, email, role, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, school, "Test User", email, string(role), "hashedpassword")
	require.NoError(t, err, "Failed to seed user")
	return id
}

func TestUserRepository_GetByEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(testPool)

	schoolID := seedSchool(t, "Northside High")
	userID := seedUser(t, schoolID, "teacher.one@example.com", domain.RoleTeacher)

	found, err := repo.GetByEmail(ctx, "teacher.one@example.com")
	require.NoError(t, err, "Failed to get user by email")

	assert.Equal(t, userID, found.ID)
	assert.Equal(t, schoolID, found.SchoolID)
	assert.Equal(t, "teacher.one@example.com", found.Email)
	assert.Equal(t, domain.RoleTeacher, found.Role)
	assert.Equal(t, "hashedpassword", found.PasswordHash)
}

func TestUserRepository_GetByEmail_SuperadminHasNoSchool(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(testPool)

	seedUser(t, uuid.Nil, "root@example.com", domain.RoleSuperadmin)

	found, err := repo.GetByEmail(ctx, "root@example.com")
	require.NoError(t, err)

	assert.Equal(t, uuid.Nil, found.SchoolID)
	assert.Equal(t, domain.RoleSuperadmin, found.Role)
}

func TestUserRepository_GetByEmail_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(testPool)

	_, err := repo.GetByEmail(ctx, "nonexistent@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}
