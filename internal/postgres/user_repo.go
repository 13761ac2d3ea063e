package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/universal-market/internal/auth"
)

type UserRepo struct{ DB *DB }

func (r *UserRepo) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	err := r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		return c.QueryRow(ctx, `
			INSERT INTO users (full_name, email, phone, password_hash)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			u.FullName, u.Email, u.Phone, u.PasswordHash).Scan(&u.ID, &u.CreatedAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return auth.User{}, auth.ErrEmailTaken
		}
		return auth.User{}, err
	}
	return u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (auth.User, error) {
	var u auth.User
	err := r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		return c.QueryRow(ctx, `
			SELECT id, full_name, email, phone, password_hash, created_at
			FROM users WHERE email = $1`, email).
			Scan(&u.ID, &u.FullName, &u.Email, &u.Phone, &u.PasswordHash, &u.CreatedAt)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, err
}

func (r *UserRepo) AdminRole(ctx context.Context, userID int64) (string, bool, error) {
	var role string
	err := r.DB.WithConn(ctx, func(c *pgxpool.Conn) error {
		return c.QueryRow(ctx, `SELECT role FROM admins WHERE user_id = $1`, userID).Scan(&role)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}
