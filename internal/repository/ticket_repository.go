package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/opsconsole/internal/domain"
	"github.com/fieldops/opsconsole/internal/policy"
)

// ErrUnknownField is returned when a partial update names a field that is
// not an updatable ticket column.
var ErrUnknownField = errors.New("unknown ticket field")

// ticketColumns maps change-set field names to their columns. Fields absent
// here cannot be touched through the mutation path.
var ticketColumns = map[string]string{
	"status":         "status",
	"priority":       "priority",
	"service_type":   "service_type",
	"description":    "description",
	"coordinator_id": "coordinator_id",
	"leader_id":      "leader_id",
	"assistant_id":   "assistant_id",
}

// TicketFilter captures listing parameters applied on top of the visibility
// scope.
type TicketFilter struct {
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	ListByScope(ctx context.Context, scope policy.TicketScope, filter TicketFilter) ([]domain.Ticket, error)
	ExistsByFolio(ctx context.Context, folio string) (bool, error)
	// UpdateWithAudit applies a partial update and appends the audit entry
	// in a single transaction. Either both land or neither does.
	UpdateWithAudit(ctx context.Context, id int64, changes map[string]any, entry *domain.AuditEntry) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketSelectColumns = `id, folio, service_type, status, priority, coordinator_id,
       legacy_coordinator_id, leader_id, assistant_id, client_email, description,
       created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (folio, service_type, status, priority, coordinator_id,
            legacy_coordinator_id, leader_id, assistant_id, client_email, description)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Folio,
		ticket.ServiceType,
		ticket.Status,
		ticket.Priority,
		ticket.CoordinatorID,
		ticket.LegacyCoordinatorID,
		ticket.LeaderID,
		ticket.AssistantID,
		ticket.ClientEmail,
		ticket.Description,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketSelectColumns)
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(ticketFields(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ExistsByFolio(ctx context.Context, folio string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE folio=$1)`, folio).Scan(&exists)
	return exists, err
}

// ListByScope compiles the visibility scope into WHERE clauses so the
// predicate is applied at the store, never after fetch.
func (r *ticketRepository) ListByScope(ctx context.Context, scope policy.TicketScope, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	switch {
	case scope.All:
		// no restriction
	case scope.CoordinatorID != nil:
		args = append(args, *scope.CoordinatorID)
		clauses = append(clauses, fmt.Sprintf("(coordinator_id=$%d OR legacy_coordinator_id=$%d)", len(args), len(args)))
	case scope.OperativeID != nil:
		args = append(args, *scope.OperativeID)
		clauses = append(clauses, fmt.Sprintf("(leader_id=$%d OR assistant_id=$%d)", len(args), len(args)))
	case scope.ClientEmail != nil:
		args = append(args, *scope.ClientEmail)
		clauses = append(clauses, fmt.Sprintf("client_email=$%d", len(args)))
	default:
		// empty scope matches nothing
		return []domain.Ticket{}, nil
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketSelectColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) UpdateWithAudit(ctx context.Context, id int64, changes map[string]any, entry *domain.AuditEntry) error {
	sets := []string{}
	args := []any{}
	for field, value := range changes {
		column, ok := ticketColumns[field]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, field)
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
		// the legacy coordinator alias must never disagree with the
		// canonical column
		if field == "coordinator_id" {
			sets = append(sets, fmt.Sprintf("legacy_coordinator_id=$%d", len(args)))
		}
	}
	if len(sets) == 0 {
		return fmt.Errorf("%w: empty change set", ErrUnknownField)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	args = append(args, id)
	update := fmt.Sprintf(`UPDATE tickets SET %s, updated_at=NOW() WHERE id=$%d`,
		strings.Join(sets, ", "), len(args))
	cmd, err := tx.Exec(ctx, update, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	const insertAudit = `
        INSERT INTO ticket_audit_log (ticket_id, actor_id, source, changes)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insertAudit,
		entry.TicketID,
		entry.ActorID,
		entry.Source,
		entry.Changes,
	).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func ticketFields(t *domain.Ticket) []any {
	return []any{
		&t.ID,
		&t.Folio,
		&t.ServiceType,
		&t.Status,
		&t.Priority,
		&t.CoordinatorID,
		&t.LegacyCoordinatorID,
		&t.LeaderID,
		&t.AssistantID,
		&t.ClientEmail,
		&t.Description,
		&t.CreatedAt,
		&t.UpdatedAt,
	}
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketFields(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
