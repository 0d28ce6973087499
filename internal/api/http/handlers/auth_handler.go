package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/opsconsole/internal/api/dto"
	"github.com/fieldops/opsconsole/internal/service"
	apperrors "github.com/fieldops/opsconsole/pkg/errorutil"
)

// AuthHandler exposes the login endpoint.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationFailed("invalid payload", nil)
	}
	token, expiresAt, actor, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ActorID:   actor.ID,
		Name:      actor.Name,
		Role:      actor.Role,
	}})
}
