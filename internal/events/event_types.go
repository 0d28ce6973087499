package events

import (
	"time"

	"github.com/fieldops/opsconsole/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketUpdated       EventType = "ticket_updated"
	EventTicketStatusChanged EventType = "ticket_status_changed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	ActorID   int64       `json:"actor_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Folio       string `json:"folio"`
	ServiceType string `json:"service_type"`
	ClientEmail string `json:"client_email"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	Fields []string            `json:"fields"`
	Source domain.ChangeSource `json:"source"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Source    domain.ChangeSource `json:"source"`
}
