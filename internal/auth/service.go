package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ariefcatur/universal-market/internal/apperr"
)

const MinPasswordLength = 6

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Service struct {
	store  UserStore
	tokens *Tokens
	log    *zap.Logger
	cost   int
}

type Option func(*Service)

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(store UserStore, tokens *Tokens, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{store: store, tokens: tokens, log: log, cost: 10}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (Result, error) {
	in.Email = strings.TrimSpace(in.Email)
	if strings.TrimSpace(in.Username) == "" || in.Email == "" || strings.TrimSpace(in.Phone) == "" || in.Password == "" {
		return Result{}, apperr.Validation("All fields are required")
	}
	if !emailRe.MatchString(in.Email) {
		return Result{}, apperr.Validation("Invalid email format")
	}
	if len(in.Password) < MinPasswordLength {
		return Result{}, apperr.Validation("Password must be at least 6 characters long")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Result{}, apperr.Internal("Registration failed", err)
	}
	u, err := s.store.CreateUser(ctx, User{
		FullName:     strings.TrimSpace(in.Username),
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
	})
	if errors.Is(err, ErrEmailTaken) {
		return Result{}, apperr.Conflict("User with this email already exists")
	}
	if err != nil {
		return Result{}, apperr.Internal("Registration failed", err)
	}

	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Result{}, apperr.Internal("Registration failed", err)
	}
	s.log.Info("user registered", zap.Int64("user_id", u.ID))
	return Result{User: u, Token: token}, nil
}

func (s *Service) Login(ctx context.Context, in LoginInput) (Result, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return Result{}, apperr.Validation("Email and password are required")
	}
	invalid := apperr.New(apperr.KindUnauthorized, "Invalid email or password")

	u, err := s.store.GetByEmail(ctx, strings.TrimSpace(in.Email))
	if errors.Is(err, ErrUserNotFound) {
		return Result{}, invalid
	}
	if err != nil {
		return Result{}, apperr.Internal("Login failed", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return Result{}, invalid
	}

	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Result{}, apperr.Internal("Login failed", err)
	}
	return Result{User: u, Token: token}, nil
}

func (s *Service) CheckAdmin(ctx context.Context, userID int64) (AdminStatus, error) {
	role, ok, err := s.store.AdminRole(ctx, userID)
	if err != nil {
		return AdminStatus{}, apperr.Internal("Failed to check admin status", err)
	}
	if !ok {
		return AdminStatus{IsAdmin: false, Role: "user"}, nil
	}
	return AdminStatus{IsAdmin: true, Role: role}, nil
}
