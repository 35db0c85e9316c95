package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/classpulse/classpulse-backend/internal/core/domain"
)

// Claims defines the structured data we store in the JWT. The same token is
// accepted by the REST middleware and the websocket handshake, so the gateway
// can derive {user, school, role} without a store lookup.
type Claims struct {
	UserID   uuid.UUID   `json:"userId"`
	SchoolID string      `json:"schoolId,omitempty"` // empty for superadmins
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secretKey: []byte(secret), ttl: ttl}
}

// GenerateToken creates a new JWT access token for the user.
func (tm *TokenManager) GenerateToken(user *domain.User) (string, error) {
	schoolID := ""
	if user.Role.HasTenant() {
		schoolID = user.SchoolID.String()
	}

	claims := &Claims{
		UserID:   user.ID,
		SchoolID: schoolID,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   user.ID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken parses and validates the token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	if !claims.Role.IsValid() {
		return nil, errors.New("unknown role in token")
	}

	return claims, nil
}
