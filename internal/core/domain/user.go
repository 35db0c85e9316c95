package domain

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// User is a platform account. Only the fields the realtime service needs are
// modeled here: identity, tenant scope, role, and the credential hash the
// login endpoint verifies against. Registration and profile management live
// in the user service, not here.
type User struct {
	ID           uuid.UUID
	SchoolID     uuid.UUID // zero for superadmins
	Name         string
	Email        string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// CheckPassword verifies the provided password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// HashPassword hashes a password using bcrypt. Used by seed tooling and tests.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
