package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldops/opsconsole/internal/domain"
	"github.com/fieldops/opsconsole/internal/events"
	"github.com/fieldops/opsconsole/internal/identity"
	"github.com/fieldops/opsconsole/internal/policy"
	"github.com/fieldops/opsconsole/internal/repository"
	apperrors "github.com/fieldops/opsconsole/pkg/errorutil"
)

// mockStore implements TicketRepository and AuditLogRepository over maps,
// mirroring the transactional contract: an update error means no audit row.
type mockStore struct {
	tickets   map[int64]*domain.Ticket
	auditRows []domain.AuditEntry
	nextID    int64
	updateErr error
	listErr   error
}

func newMockStore() *mockStore {
	return &mockStore{tickets: make(map[int64]*domain.Ticket)}
}

func (m *mockStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	m.nextID++
	ticket.ID = m.nextID
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	copied := *ticket
	m.tickets[ticket.ID] = &copied
	return nil
}

func (m *mockStore) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (m *mockStore) ListByScope(ctx context.Context, scope policy.TicketScope, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []domain.Ticket
	for _, ticket := range m.tickets {
		if scope.Matches(ticket) {
			result = append(result, *ticket)
		}
	}
	return result, nil
}

func (m *mockStore) ExistsByFolio(ctx context.Context, code string) (bool, error) {
	for _, ticket := range m.tickets {
		if ticket.Folio == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) UpdateWithAudit(ctx context.Context, id int64, changes map[string]any, entry *domain.AuditEntry) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	ticket, ok := m.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	for field, value := range changes {
		switch field {
		case "status":
			ticket.Status = domain.TicketStatus(value.(string))
		case "priority":
			ticket.Priority = value.(string)
		case "description":
			ticket.Description = value.(string)
		case "service_type":
			ticket.ServiceType = value.(string)
		case "coordinator_id":
			id := value.(int64)
			ticket.CoordinatorID = &id
			ticket.LegacyCoordinatorID = &id
		case "leader_id":
			id := value.(int64)
			ticket.LeaderID = &id
		case "assistant_id":
			id := value.(int64)
			ticket.AssistantID = &id
		default:
			return fmt.Errorf("%w: %s", repository.ErrUnknownField, field)
		}
	}
	ticket.UpdatedAt = time.Now()

	entry.ID = int64(len(m.auditRows) + 1)
	entry.CreatedAt = time.Now()
	m.auditRows = append(m.auditRows, *entry)
	return nil
}

func (m *mockStore) ListByTicket(ctx context.Context, ticketID int64, limit, offset int) ([]domain.AuditEntry, error) {
	var result []domain.AuditEntry
	for _, entry := range m.auditRows {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type mockResolver struct {
	actors map[int64]*domain.Actor
}

func (m *mockResolver) Resolve(ctx context.Context, actorID int64) (*domain.Actor, error) {
	actor, ok := m.actors[actorID]
	if !ok {
		return nil, identity.ErrActorNotFound
	}
	return actor, nil
}

func (m *mockResolver) Invalidate(ctx context.Context, actorID int64) {}

func newTestService(allowPrivilegedOverride bool) (*TicketService, *mockStore, *mockResolver) {
	store := newMockStore()
	resolver := &mockResolver{actors: make(map[int64]*domain.Actor)}
	svc := NewTicketService(TicketDependencies{
		TicketRepo:  store,
		AuditRepo:   store,
		Resolver:    resolver,
		Transitions: policy.NewTransitionPolicy(allowPrivilegedOverride),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Logger:      zap.NewNop(),
	})
	return svc, store, resolver
}

func seedTicket(store *mockStore, id int64, mutate func(*domain.Ticket)) *domain.Ticket {
	ticket := &domain.Ticket{
		ID:          id,
		Folio:       fmt.Sprintf("SRV0126%04d", id),
		ServiceType: "mantenimiento",
		Status:      domain.TicketStatusUnassigned,
		ClientEmail: "cliente@acme.mx",
	}
	if mutate != nil {
		mutate(ticket)
	}
	store.tickets[id] = ticket
	if id > store.nextID {
		store.nextID = id
	}
	return ticket
}

func requireCode(t *testing.T, err error, code string) *apperrors.DomainError {
	t.Helper()
	require.Error(t, err)
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr), "expected DomainError, got %T: %v", err, err)
	require.Equal(t, code, domainErr.Code, "unexpected error: %v", err)
	return domainErr
}

func intPtr(v int64) *int64 { return &v }

func TestUpdateTicket_CoordinatorStatusChange(t *testing.T) {
	svc, store, resolver := newTestService(false)
	resolver.actors[7] = &domain.Actor{ID: 7, Role: domain.RoleCoordinator}
	seedTicket(store, 42, func(tk *domain.Ticket) { tk.CoordinatorID = intPtr(7) })

	ticket, err := svc.UpdateTicket(context.Background(), 42, map[string]any{"status": "Pendiente"}, 7, domain.SourceTable)
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatus("PENDIENTE"), ticket.Status)
	require.Len(t, store.auditRows, 1)
	row := store.auditRows[0]
	assert.Equal(t, int64(42), row.TicketID)
	assert.Equal(t, int64(7), row.ActorID)
	assert.Equal(t, domain.SourceTable, row.Source)
	assert.Equal(t, "PENDIENTE", row.Changes["status"])
}

func TestUpdateTicket_IdempotentStateDistinctAuditRows(t *testing.T) {
	svc, store, resolver := newTestService(false)
	resolver.actors[1] = &domain.Actor{ID: 1, Role: domain.RoleAdmin}
	seedTicket(store, 10, nil)

	changes := map[string]any{"priority": "alta"}
	first, err := svc.UpdateTicket(context.Background(), 10, changes, 1, domain.SourceModal)
	require.NoError(t, err)
	second, err := svc.UpdateTicket(context.Background(), 10, changes, 1, domain.SourceModal)
	require.NoError(t, err)

	assert.Equal(t, first.Priority, second.Priority)
	assert.Equal(t, first.Status, second.Status)
	assert.Len(t, store.auditRows, 2)
}

func TestUpdateTicket_UnresolvableActor(t *testing.T) {
	svc, store, _ := newTestService(false)
	seedTicket(store, 1, nil)

	_, err := svc.UpdateTicket(context.Background(), 1, map[string]any{"priority": "alta"}, 99, domain.SourceTable)
	requireCode(t, err, apperrors.CodeAuthFailed)
	assert.Empty(t, store.auditRows)
}

func TestUpdateTicket_RejectsUnknownSource(t *testing.T) {
	svc, store, resolver := newTestService(false)
	resolver.actors[1] = &domain.Actor{ID: 1, Role: domain.RoleAdmin}
	seedTicket(store, 1, nil)

	_, err := svc.UpdateTicket(context.Background(), 1, map[string]any{"priority": "alta"}, 1, "SIDEBAR")
	requireCode(t, err, apperrors.CodeValidationFailed)
	assert.Empty(t, store.auditRows)
}

func TestUpdateTicket_RejectsEmptyChanges(t *testing.T) {
	svc, _, resolver := newTestService(false)
	resolver.actors[1] = &domain.Actor{ID: 1, Role: domain.RoleAdmin}

	_, err := svc.UpdateTicket(context.Background(), 1, map[string]any{}, 1, domain.SourceTable)
	requireCode(t, err, apperrors.CodeValidationFailed)
}

func TestUpdateTicket_ClientQAProtectedByDefault(t *testing.T) {
	svc, store, resolver := newTestService(false)
	resolver.actors[9] = &domain.Actor{ID: 9, Role: domain.RoleClient, Email: "cliente@acme.mx"}
	seedTicket(store, 42, nil)

	// QA sits in the client's allowed set, but protected-status precedence
	// wins with the default configuration
	_, err := svc.UpdateTicket(context.Background(), 42, map[string]any{"status": "QA"}, 9, domain.SourceModal)
	domainErr := requireCode(t, err, apperrors.CodeValidationFailed)
	assert.Contains(t, domainErr.Message, "system-managed")
	assert.Empty(t, store.auditRows)
}

func TestUpdateTicket_PrivilegedOverrideAllowsProtected(t *testing.T) {
	svc, store, resolver := newTestService(true)
	resolver.actors[1] = &domain.Actor{ID: 1, Role: domain.RoleSuperadmin}
	resolver.actors[9] = &domain.Actor{ID: 9, Role: domain.RoleClient, Email: "cliente@acme.mx"}
	seedTicket(store, 42, nil)

	ticket, err := svc.UpdateTicket(context.Background(), 42, map[string]any{"status": "cerrado"}, 1, domain.SourceTable)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, ticket.Status)

	// the override never extends to non-privileged roles
	_, err = svc.UpdateTicket(context.Background(), 42, map[string]any{"status": "QA"}, 9, domain.SourceModal)
	requireCode(t, err, apperrors.CodeValidationFailed)
}

func TestUpdateTicket_OperativeTransitions(t *testing.T) {
	svc, store, resolver := newTestService(false)
	resolver.actors[5] = &domain.Actor{ID: 5, Role: domain.RoleOperative}
	seedTicket(store, 3, func(tk *domain.Ticket) { tk.LeaderID = intPtr(5) })

	_, err := svc.UpdateTicket(context.Background(), 3, map[string]any{"status": "CERRADO"}, 5, domain.SourcePlanner)
	requireCode(t, err, apperrors.CodeValidationFailed)

	ticket, err := svc.UpdateTicket(context.Background(), 3, map[string]any{"status": "en proceso"}, 5, domain.SourcePlanner)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatus("EN PROCESO"), ticket.Status)
}

func TestUpdateTicket_StoreFailureLeavesNoAudit(t *testing.T) {
	svc, store, resolver := newTestService(false)
	resolver.actors[1] = &domain.Actor{ID: 1, Role: domain.RoleAdmin}
	seedTicket(store, 1, nil)
	store.updateErr = errors.New("connection reset")

	_, err := svc.UpdateTicket(context.Background(), 1, map[string]any{"priority": "alta"}, 1, domain.SourceTable)
	requireCode(t, err, apperrors.CodeStoreFailed)
	assert.Empty(t, store.auditRows)
}

func TestUpdateTicket_UnknownFieldRejected(t *testing.T) {
	svc, store, resolver := newTestService(false)
	resolver.actors[1] = &domain.Actor{ID: 1, Role: domain.RoleAdmin}
	seedTicket(store, 1, nil)

	_, err := svc.UpdateTicket(context.Background(), 1, map[string]any{"folio": "HACK"}, 1, domain.SourceTable)
	requireCode(t, err, apperrors.CodeValidationFailed)
}

func TestUpdateTicket_MissingTicket(t *testing.T) {
	svc, _, resolver := newTestService(false)
	resolver.actors[1] = &domain.Actor{ID: 1, Role: domain.RoleAdmin}

	_, err := svc.UpdateTicket(context.Background(), 404, map[string]any{"priority": "alta"}, 1, domain.SourceTable)
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestListVisibleTickets_AdminSeesAll(t *testing.T) {
	svc, store, _ := newTestService(false)
	seedTicket(store, 1, func(tk *domain.Ticket) { tk.CoordinatorID = intPtr(7) })
	seedTicket(store, 2, func(tk *domain.Ticket) { tk.LeaderID = intPtr(5) })
	seedTicket(store, 3, nil)

	for _, role := range []domain.Role{domain.RoleSuperadmin, domain.RoleAdmin} {
		tickets, err := svc.ListVisibleTickets(context.Background(), domain.Actor{ID: 1, Role: role}, TicketListFilter{})
		require.NoError(t, err)
		assert.Len(t, tickets, 3, "role %s", role)
	}
}

func TestListVisibleTickets_OperativeScope(t *testing.T) {
	svc, store, _ := newTestService(false)
	seedTicket(store, 1, func(tk *domain.Ticket) { tk.LeaderID = intPtr(5) })
	seedTicket(store, 2, func(tk *domain.Ticket) { tk.AssistantID = intPtr(5) })
	seedTicket(store, 3, func(tk *domain.Ticket) { tk.LeaderID = intPtr(6) })

	tickets, err := svc.ListVisibleTickets(context.Background(), domain.Actor{ID: 5, Role: domain.RoleOperative}, TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	for _, ticket := range tickets {
		matched := (ticket.LeaderID != nil && *ticket.LeaderID == 5) ||
			(ticket.AssistantID != nil && *ticket.AssistantID == 5)
		assert.True(t, matched, "ticket %d leaked into operative scope", ticket.ID)
	}
}

func TestListVisibleTickets_CoordinatorLegacyColumn(t *testing.T) {
	svc, store, _ := newTestService(false)
	seedTicket(store, 1, func(tk *domain.Ticket) { tk.CoordinatorID = intPtr(7) })
	seedTicket(store, 2, func(tk *domain.Ticket) { tk.LegacyCoordinatorID = intPtr(7) })
	seedTicket(store, 3, func(tk *domain.Ticket) { tk.CoordinatorID = intPtr(8) })

	tickets, err := svc.ListVisibleTickets(context.Background(), domain.Actor{ID: 7, Role: domain.RoleCoordinator}, TicketListFilter{})
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
}

func TestListVisibleTickets_ClientWithoutEmailGetsNothing(t *testing.T) {
	svc, store, _ := newTestService(false)
	seedTicket(store, 1, nil)
	seedTicket(store, 2, nil)

	tickets, err := svc.ListVisibleTickets(context.Background(), domain.Actor{ID: 9, Role: domain.RoleClient}, TicketListFilter{})
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestCreateTicket_ClientFiling(t *testing.T) {
	svc, _, _ := newTestService(false)
	actor := domain.Actor{ID: 9, Role: domain.RoleClient, Email: "cliente@acme.mx"}

	ticket, err := svc.CreateTicket(context.Background(), actor, TicketCreateInput{
		ServiceType: "mantenimiento",
		Description: "bomba de agua sin presion",
		// a client cannot file under someone else's email
		ClientEmail: "otro@acme.mx",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusUnassigned, ticket.Status)
	assert.Equal(t, "cliente@acme.mx", ticket.ClientEmail)
	assert.NotEmpty(t, ticket.Folio)
	assert.Contains(t, ticket.Folio, "MTO")
}

func TestCreateTicket_RequiresServiceType(t *testing.T) {
	svc, _, _ := newTestService(false)
	_, err := svc.CreateTicket(context.Background(), domain.Actor{ID: 1, Role: domain.RoleAdmin}, TicketCreateInput{
		ClientEmail: "cliente@acme.mx",
	})
	requireCode(t, err, apperrors.CodeValidationFailed)
}

func TestListAudit_RoleGating(t *testing.T) {
	svc, store, resolver := newTestService(false)
	resolver.actors[1] = &domain.Actor{ID: 1, Role: domain.RoleAdmin}
	seedTicket(store, 42, func(tk *domain.Ticket) { tk.CoordinatorID = intPtr(7) })

	_, err := svc.UpdateTicket(context.Background(), 42, map[string]any{"priority": "alta"}, 1, domain.SourceTable)
	require.NoError(t, err)

	entries, err := svc.ListAudit(context.Background(), domain.Actor{ID: 1, Role: domain.RoleAdmin}, 42, 100, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// coordinator in scope
	entries, err = svc.ListAudit(context.Background(), domain.Actor{ID: 7, Role: domain.RoleCoordinator}, 42, 100, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// coordinator out of scope
	_, err = svc.ListAudit(context.Background(), domain.Actor{ID: 8, Role: domain.RoleCoordinator}, 42, 100, 0)
	requireCode(t, err, apperrors.CodeForbidden)

	// operatives and clients never see the trail
	_, err = svc.ListAudit(context.Background(), domain.Actor{ID: 5, Role: domain.RoleOperative}, 42, 100, 0)
	requireCode(t, err, apperrors.CodeForbidden)
}
