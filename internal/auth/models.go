package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmailTaken   = errors.New("email already registered")
	ErrUserNotFound = errors.New("user not found")
)

type User struct {
	ID           int64     `json:"id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserStore interface {
	// CreateUser returns ErrEmailTaken on a duplicate email.
	CreateUser(ctx context.Context, u User) (User, error)
	// GetByEmail returns ErrUserNotFound when no user matches.
	GetByEmail(ctx context.Context, email string) (User, error)
	// AdminRole reports the admin grant for userID, ok=false when there is none.
	AdminRole(ctx context.Context, userID int64) (role string, ok bool, err error)
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Result struct {
	User  User
	Token string
}

type AdminStatus struct {
	IsAdmin bool   `json:"isAdmin"`
	Role    string `json:"role"`
}
