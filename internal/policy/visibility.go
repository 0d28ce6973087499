package policy

import (
	"strings"

	"github.com/fieldops/opsconsole/internal/domain"
)

// TicketScope is the store-level read predicate for one actor. Exactly one
// of the membership fields is populated for non-privileged roles; the
// repository compiles the scope into WHERE clauses so no ticket row ever
// leaves the store unscoped.
type TicketScope struct {
	// All grants unrestricted reads (superadmin, admin).
	All bool
	// Empty matches no tickets. The zero value of TicketScope is an empty
	// scope, so unknown roles and malformed actors fail closed.
	Empty bool
	// CoordinatorID matches coordinator_id or its legacy alias column.
	CoordinatorID *int64
	// OperativeID matches leader_id or assistant_id.
	OperativeID *int64
	// ClientEmail matches client_email case-sensitively.
	ClientEmail *string
}

// Scope returns the ticket visibility predicate for the actor. Pure, no side
// effects; a context missing required fields degrades to the empty scope
// rather than failing open.
func Scope(actor domain.Actor) TicketScope {
	switch actor.Role {
	case domain.RoleSuperadmin, domain.RoleAdmin:
		return TicketScope{All: true}
	case domain.RoleCoordinator:
		if actor.ID == 0 {
			return TicketScope{Empty: true}
		}
		id := actor.ID
		return TicketScope{CoordinatorID: &id}
	case domain.RoleOperative:
		if actor.ID == 0 {
			return TicketScope{Empty: true}
		}
		id := actor.ID
		return TicketScope{OperativeID: &id}
	case domain.RoleClient:
		email := strings.TrimSpace(actor.Email)
		if email == "" {
			return TicketScope{Empty: true}
		}
		return TicketScope{ClientEmail: &email}
	}
	return TicketScope{Empty: true}
}

// Matches evaluates the scope against an in-memory ticket. The repository
// applies scopes in SQL; this is for callers that already hold a row and
// need the same answer (for example, single-ticket reads after fetch-by-id
// inside a transaction).
func (s TicketScope) Matches(t *domain.Ticket) bool {
	switch {
	case s.All:
		return true
	case s.CoordinatorID != nil:
		id := *s.CoordinatorID
		return (t.CoordinatorID != nil && *t.CoordinatorID == id) ||
			(t.LegacyCoordinatorID != nil && *t.LegacyCoordinatorID == id)
	case s.OperativeID != nil:
		id := *s.OperativeID
		return (t.LeaderID != nil && *t.LeaderID == id) ||
			(t.AssistantID != nil && *t.AssistantID == id)
	case s.ClientEmail != nil:
		return t.ClientEmail == *s.ClientEmail
	}
	return false
}
