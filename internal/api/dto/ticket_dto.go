package dto

import (
	"time"

	"github.com/fieldops/opsconsole/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	ServiceType string `json:"service_type"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
	// ClientEmail is honored only for staff filing on behalf of a client;
	// client principals always file under their own email.
	ClientEmail string `json:"client_email"`
}

// UpdateTicketRequest carries the partial change set and its UI origin.
type UpdateTicketRequest struct {
	Changes map[string]any `json:"changes"`
	Source  string         `json:"source"`
}

// TicketResponse response.
type TicketResponse struct {
	ID            int64               `json:"id"`
	Folio         string              `json:"folio"`
	ServiceType   string              `json:"service_type"`
	Status        domain.TicketStatus `json:"status"`
	Priority      string              `json:"priority"`
	CoordinatorID *int64              `json:"coordinator_id"`
	LeaderID      *int64              `json:"leader_id"`
	AssistantID   *int64              `json:"assistant_id"`
	ClientEmail   string              `json:"client_email"`
	Description   string              `json:"description"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// AuditEntryResponse represents one audit trail row.
type AuditEntryResponse struct {
	ID        int64               `json:"id"`
	TicketID  int64               `json:"ticket_id"`
	ActorID   int64               `json:"actor_id"`
	Source    domain.ChangeSource `json:"source"`
	Changes   map[string]any      `json:"changes"`
	CreatedAt time.Time           `json:"created_at"`
}
