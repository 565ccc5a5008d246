package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jk-7-dev/event-manager/internal/auth"
	"github.com/jk-7-dev/event-manager/internal/model"
	"github.com/jk-7-dev/event-manager/internal/repository"
)

// AuthService registers accounts, exchanges credentials for tokens and
// resolves tokens back to identities.
type AuthService struct {
	users      repository.UserStore
	tokens     *auth.Tokens
	adminEmail string
	hashCost   int
	log        *zap.Logger
}

// NewAuthService constructs an AuthService. An account registered with
// adminEmail (case-insensitive) is created as an admin; empty disables it.
func NewAuthService(users repository.UserStore, tokens *auth.Tokens, adminEmail string, log *zap.Logger) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		hashCost:   bcrypt.DefaultCost,
		log:        orGlobal(log),
	}
}

// Register creates an account and returns it with a fresh token.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.AuthResult, error) {
	if err := req.Validate(); err != nil {
		return model.AuthResult{}, invalid(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.users.CreateUser(ctx, model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
		IsAdmin:      s.adminEmail != "" && email == s.adminEmail,
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return model.AuthResult{}, invalid(ErrEmailExists)
		}
		return model.AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("user registered", zap.String("user_id", user.ID), zap.Bool("admin", user.IsAdmin))
	return s.result(user)
}

// Login checks the credentials and returns the account with a fresh token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResult, error) {
	if err := req.Validate(); err != nil {
		return model.AuthResult{}, invalid(err)
	}

	user, err := s.users.FindUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.AuthResult{}, ErrInvalidCredentials
		}
		return model.AuthResult{}, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return model.AuthResult{}, ErrInvalidCredentials
	}

	return s.result(user)
}

// Identify verifies a bearer token and loads the account it names. The
// admin flag comes from the stored account, not from the token.
func (s *AuthService) Identify(ctx context.Context, token string) (auth.Identity, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return auth.Identity{}, err
	}

	user, err := s.users.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Identity{}, fmt.Errorf("%w: unknown user", auth.ErrInvalidToken)
		}
		return auth.Identity{}, fmt.Errorf("find user: %w", err)
	}

	return auth.Identity{
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
	}, nil
}

func (s *AuthService) result(user model.User) (model.AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.IsAdmin)
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return model.AuthResult{
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
		Token:   token,
	}, nil
}
