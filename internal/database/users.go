package database

import (
	"context"

	"github.com/google/uuid"
)

const createUser = `
INSERT INTO users (email, name, hashed_password, is_staff, is_superuser)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, email, name, hashed_password, is_active, is_staff, is_superuser, created_at, updated_at
`

type CreateUserParams struct {
	Email          string
	Name           string
	HashedPassword string
	IsStaff        bool
	IsSuperuser    bool
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.Email,
		arg.Name,
		arg.HashedPassword,
		arg.IsStaff,
		arg.IsSuperuser,
	)
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.HashedPassword,
		&u.IsActive,
		&u.IsStaff,
		&u.IsSuperuser,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

const getUserByEmail = `
SELECT id, email, name, hashed_password, is_active, is_staff, is_superuser, created_at, updated_at
FROM users
WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.HashedPassword,
		&u.IsActive,
		&u.IsStaff,
		&u.IsSuperuser,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

const getUserByID = `
SELECT id, email, name, hashed_password, is_active, is_staff, is_superuser, created_at, updated_at
FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.HashedPassword,
		&u.IsActive,
		&u.IsStaff,
		&u.IsSuperuser,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}
