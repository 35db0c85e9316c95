package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/classpulse-backend/internal/core/domain"
	apperrors "github.com/classpulse/classpulse-backend/internal/core/errors"
	"github.com/classpulse/classpulse-backend/internal/core/ports"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

var _ ports.UserRepository = (*UserRepository)(nil)

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
		SELECT id, school_id, name, email, role, password_hash, created_at
		FROM users
		WHERE email = $1`

	var (
		id       pgtype.UUID
		schoolID pgtype.UUID
		user     domain.User
		role     string
	)

	err := r.pool.QueryRow(ctx, query, email).Scan(
		&id, &schoolID, &user.Name, &user.Email, &role, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}

	user.ID = id.Bytes
	if schoolID.Valid {
		user.SchoolID = schoolID.Bytes
	}
	user.Role = domain.Role(role)

	return &user, nil
}
