package dto

import (
	"time"

	"github.com/fieldops/opsconsole/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and actor context.
type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	ActorID   int64       `json:"actor_id"`
	Name      string      `json:"name"`
	Role      domain.Role `json:"role"`
}
