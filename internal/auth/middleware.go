package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/opsconsole/internal/domain"
	"github.com/fieldops/opsconsole/internal/identity"
	apperrors "github.com/fieldops/opsconsole/pkg/errorutil"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer tokens and loads the calling actor.
type AuthMiddleware struct {
	tokens   *TokenManager
	resolver identity.Resolver
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, resolver identity.Resolver) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, resolver: resolver}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	actorID, err := claims.ActorID()
	if err != nil {
		return apperrors.NewUnauthorized("invalid token subject")
	}

	actor, err := m.resolver.Resolve(c.UserContext(), actorID)
	if err != nil {
		if errors.Is(err, identity.ErrActorNotFound) {
			return apperrors.NewUnauthorized("actor not found")
		}
		return apperrors.MapError(err)
	}

	c.Locals(principalKey, actor)
	return c.Next()
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (*domain.Actor, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	actor, ok := val.(*domain.Actor)
	return actor, ok
}
