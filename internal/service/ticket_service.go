package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/fieldops/opsconsole/internal/domain"
	"github.com/fieldops/opsconsole/internal/events"
	"github.com/fieldops/opsconsole/internal/folio"
	"github.com/fieldops/opsconsole/internal/identity"
	"github.com/fieldops/opsconsole/internal/policy"
	"github.com/fieldops/opsconsole/internal/repository"
	apperrors "github.com/fieldops/opsconsole/pkg/errorutil"
)

const folioRetries = 3

// TicketService coordinates ticket reads and the mutation pipeline.
type TicketService struct {
	tickets     repository.TicketRepository
	audit       repository.AuditLogRepository
	resolver    identity.Resolver
	transitions *policy.TransitionPolicy
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	AuditRepo   repository.AuditLogRepository
	Resolver    identity.Resolver
	Transitions *policy.TransitionPolicy
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// TicketCreateInput describes the ticket filing payload.
type TicketCreateInput struct {
	ServiceType string
	Priority    string
	Description string
	ClientEmail string
}

// TicketListFilter describes listing parameters on top of visibility.
type TicketListFilter struct {
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		audit:       deps.AuditRepo,
		resolver:    deps.Resolver,
		transitions: deps.Transitions,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
	}
}

// ListVisibleTickets returns the tickets the actor is entitled to read. The
// visibility predicate is compiled into the store query, so client-supplied
// ids can never widen the result.
func (s *TicketService) ListVisibleTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	scope := policy.Scope(actor)
	tickets, err := s.tickets.ListByScope(ctx, scope, repository.TicketFilter{
		Statuses: filter.Statuses,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
	if err != nil {
		return nil, apperrors.NewStoreFailed(err)
	}
	return tickets, nil
}

// GetTicketForActor fetches a single ticket, re-applying the actor's scope.
func (s *TicketService) GetTicketForActor(ctx context.Context, actor domain.Actor, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewStoreFailed(err)
	}
	if !policy.Scope(actor).Matches(ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// CreateTicket files a new service request. Status starts at the unassigned
// sentinel and the folio is assigned exactly once.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	serviceType := strings.TrimSpace(input.ServiceType)
	if serviceType == "" {
		return nil, apperrors.NewValidationFailed("service_type required", nil)
	}

	clientEmail := strings.TrimSpace(input.ClientEmail)
	if actor.Role == domain.RoleClient {
		clientEmail = strings.TrimSpace(actor.Email)
	}
	if clientEmail == "" {
		return nil, apperrors.NewValidationFailed("client_email required", nil)
	}

	code, err := s.uniqueFolio(ctx, serviceType)
	if err != nil {
		return nil, apperrors.NewStoreFailed(err)
	}

	ticket := &domain.Ticket{
		Folio:       code,
		ServiceType: serviceType,
		Status:      domain.TicketStatusUnassigned,
		Priority:    strings.TrimSpace(input.Priority),
		ClientEmail: clientEmail,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewStoreFailed(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketCreatedPayload{
			Folio:       ticket.Folio,
			ServiceType: ticket.ServiceType,
			ClientEmail: ticket.ClientEmail,
		},
	})
	return ticket, nil
}

// UpdateTicket runs the mutation pipeline: resolve actor, validate the
// transition when status is changing, then apply the partial update and
// append the audit entry in one transaction.
func (s *TicketService) UpdateTicket(ctx context.Context, ticketID int64, changes map[string]any, actorID int64, source domain.ChangeSource) (*domain.Ticket, error) {
	actor, err := s.resolver.Resolve(ctx, actorID)
	if err != nil {
		if errors.Is(err, identity.ErrActorNotFound) {
			return nil, apperrors.NewAuthFailed("actor could not be resolved")
		}
		return nil, apperrors.NewStoreFailed(err)
	}

	if !domain.ValidSource(source) {
		return nil, apperrors.NewValidationFailed("unknown change source", map[string]any{"source": source})
	}
	if len(changes) == 0 {
		return nil, apperrors.NewValidationFailed("no fields to update", nil)
	}

	var statusChange *events.TicketStatusChangedPayload
	if raw, ok := changes["status"]; ok {
		requested, ok := raw.(string)
		if !ok {
			return nil, apperrors.NewValidationFailed("status must be a string", nil)
		}
		normalized, err := s.transitions.Validate(actor.Role, requested)
		if err != nil {
			return nil, apperrors.NewValidationFailed(err.Error(), map[string]any{
				"role":   actor.Role,
				"status": requested,
			})
		}
		// the canonical upper-cased value is what lands in the store and in
		// the audit trail
		changes["status"] = string(normalized)
		statusChange = &events.TicketStatusChangedPayload{NewStatus: normalized, Source: source}
	}

	if statusChange != nil {
		current, err := s.tickets.GetByID(ctx, ticketID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
			}
			return nil, apperrors.NewStoreFailed(err)
		}
		statusChange.OldStatus = current.Status
	}

	entry := &domain.AuditEntry{
		TicketID: ticketID,
		ActorID:  actor.ID,
		Source:   source,
		Changes:  changes,
	}
	if err := s.tickets.UpdateWithAudit(ctx, ticketID, changes, entry); err != nil {
		switch {
		case errors.Is(err, repository.ErrUnknownField):
			return nil, apperrors.NewValidationFailed(err.Error(), nil)
		case errors.Is(err, pgx.ErrNoRows):
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		default:
			return nil, apperrors.NewStoreFailed(err)
		}
	}

	s.logger.Info("ticket updated",
		zap.Int64("ticket_id", ticketID),
		zap.Int64("actor_id", actor.ID),
		zap.String("source", string(source)),
		zap.Strings("fields", changedFields(changes)))

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticketID,
		ActorID:  actor.ID,
		Payload: events.TicketUpdatedPayload{
			Fields: changedFields(changes),
			Source: source,
		},
	})
	if statusChange != nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticketID,
			ActorID:  actor.ID,
			Payload:  *statusChange,
		})
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewStoreFailed(err)
	}
	return ticket, nil
}

// ListAudit returns the audit trail for privileged roles. Coordinators only
// see trails of tickets inside their own scope.
func (s *TicketService) ListAudit(ctx context.Context, actor domain.Actor, ticketID int64, limit, offset int) ([]domain.AuditEntry, error) {
	switch actor.Role {
	case domain.RoleSuperadmin, domain.RoleAdmin:
	case domain.RoleCoordinator:
		if _, err := s.GetTicketForActor(ctx, actor, ticketID); err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.NewForbidden("audit trail restricted")
	}
	entries, err := s.audit.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.NewStoreFailed(err)
	}
	return entries, nil
}

func (s *TicketService) uniqueFolio(ctx context.Context, serviceType string) (string, error) {
	var code string
	for attempt := 0; attempt < folioRetries; attempt++ {
		code = folio.Generate(serviceType)
		exists, err := s.tickets.ExistsByFolio(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	// collision odds after retries are negligible; keep the last candidate
	return code, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func changedFields(changes map[string]any) []string {
	fields := make([]string, 0, len(changes))
	for field := range changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
