package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Clark-Hu/teacher-ratings/internal/domain"
)

// UsersRepository keeps the local mirror of externally owned users.
type UsersRepository struct {
	db DBTX
}

// Upsert inserts a user or refreshes its display name.
func (r *UsersRepository) Upsert(ctx context.Context, id uuid.UUID, name string) (domain.User, error) {
	const query = `
        INSERT INTO users (id, name)
        VALUES ($1,$2)
        ON CONFLICT (id)
        DO UPDATE SET name = EXCLUDED.name
        RETURNING id, name, created_at
    `
	var user domain.User
	err := r.db.QueryRow(ctx, query, id, name).Scan(&user.ID, &user.Name, &user.CreatedAt)
	if err != nil {
		return domain.User{}, mapError(err)
	}
	return user, nil
}

// FindByID fetches a user by id.
func (r *UsersRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	const query = `SELECT id, name, created_at FROM users WHERE id = $1`
	var user domain.User
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.Name, &user.CreatedAt)
	if err != nil {
		return domain.User{}, mapError(err)
	}
	return user, nil
}
