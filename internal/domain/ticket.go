package domain

import "time"

// TicketStatus enumerates lifecycle states for service tickets. The
// persisted form is always trimmed and upper-cased; the constants below are
// the canonical values.
type TicketStatus string

const (
	TicketStatusUnassigned     TicketStatus = "SIN ASIGNAR"
	TicketStatusAssigned       TicketStatus = "ASIGNADO"
	TicketStatusPending        TicketStatus = "PENDIENTE"
	TicketStatusInProgress     TicketStatus = "EN PROCESO"
	TicketStatusExecuted       TicketStatus = "EJECUTADO"
	TicketStatusDone           TicketStatus = "REALIZADO"
	TicketStatusInternalReview TicketStatus = "REVISION INTERNA"
	TicketStatusQA             TicketStatus = "QA"
	TicketStatusClosed         TicketStatus = "CERRADO"
	TicketStatusCancelled      TicketStatus = "CANCELADO"
)

// IsTerminal reports whether further status changes are a policy decision
// rather than part of the normal lifecycle.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// Ticket is the aggregate for field-service requests.
//
// CoordinatorID and LegacyCoordinatorID carry the same semantic attribute;
// tickets written under the older schema populate only the legacy column.
// Writes keep both in sync and the schema forbids them from disagreeing.
type Ticket struct {
	ID                  int64
	Folio               string
	ServiceType         string
	Status              TicketStatus
	Priority            string
	CoordinatorID       *int64
	LegacyCoordinatorID *int64
	LeaderID            *int64
	AssistantID         *int64
	ClientEmail         string
	Description         string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
