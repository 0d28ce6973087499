package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fieldops/opsconsole/internal/auth"
	"github.com/fieldops/opsconsole/internal/config"
	"github.com/fieldops/opsconsole/internal/domain"
	"github.com/fieldops/opsconsole/internal/repository"
	apperrors "github.com/fieldops/opsconsole/pkg/errorutil"
)

// AuthService issues access tokens for console actors.
type AuthService struct {
	actors repository.ActorRepository
	tokens *auth.TokenManager
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig, actors repository.ActorRepository) *AuthService {
	return &AuthService{
		actors: actors,
		tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// Login verifies credentials and returns a signed token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, time.Time, *domain.Actor, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", time.Time{}, nil, apperrors.NewValidationFailed("email and password required", nil)
	}

	actor, err := s.actors.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", time.Time{}, nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return "", time.Time{}, nil, apperrors.NewStoreFailed(err)
	}
	if !actor.Active {
		return "", time.Time{}, nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(actor.PasswordHash, password); err != nil {
		return "", time.Time{}, nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateToken(actor.ID, actor.Role)
	if err != nil {
		return "", time.Time{}, nil, apperrors.NewInternalError(err)
	}
	return token, expiresAt, actor, nil
}
