package policy

import (
	"errors"
	"strings"

	"github.com/fieldops/opsconsole/internal/domain"
)

// Validation failures carry the reason the caller surfaces to the user.
var (
	ErrProtectedStatus  = errors.New("status is system-managed")
	ErrRoleNotPermitted = errors.New("role not permitted to set this status")
)

// protectedStatuses are reachable only through system-driven transitions,
// never through the ordinary mutation path.
var protectedStatuses = []string{
	"REALIZADO",
	"QA",
	"CERRADO",
	"CANCELADO",
}

// roleStatusTable lists the statuses each role may set directly. The table
// is authored with mixed casing; entries are normalized before lookup, same
// as the requested value.
var roleStatusTable = map[domain.Role][]string{
	domain.RoleSuperadmin: {
		"Sin Asignar", "Asignado", "Pendiente", "En Proceso", "Ejecutado",
		"Realizado", "Revision Interna", "QA", "Cerrado", "Cancelado",
	},
	domain.RoleAdmin: {
		"Sin Asignar", "Asignado", "Pendiente", "En Proceso", "Ejecutado",
		"Realizado", "Revision Interna", "QA", "Cerrado", "Cancelado",
	},
	domain.RoleCoordinator: {
		"Asignado", "Pendiente", "EN PROCESO", "Ejecutado", "Revision Interna",
	},
	domain.RoleOperative: {
		"Pendiente", "En Proceso", "Ejecutado",
	},
	domain.RoleClient: {
		"Qa",
	},
}

// TransitionPolicy decides which status values each role may set.
type TransitionPolicy struct {
	// allowPrivilegedOverride exempts superadmin and admin from the
	// protected-status check. Default false: the protected check runs first
	// and rejects for every role.
	allowPrivilegedOverride bool
	protected               map[string]struct{}
	allowed                 map[domain.Role]map[string]struct{}
}

// NewTransitionPolicy builds the policy from the authored tables,
// normalizing every entry.
func NewTransitionPolicy(allowPrivilegedOverride bool) *TransitionPolicy {
	p := &TransitionPolicy{
		allowPrivilegedOverride: allowPrivilegedOverride,
		protected:               make(map[string]struct{}, len(protectedStatuses)),
		allowed:                 make(map[domain.Role]map[string]struct{}, len(roleStatusTable)),
	}
	for _, status := range protectedStatuses {
		p.protected[NormalizeStatus(status)] = struct{}{}
	}
	for role, statuses := range roleStatusTable {
		set := make(map[string]struct{}, len(statuses))
		for _, status := range statuses {
			set[NormalizeStatus(status)] = struct{}{}
		}
		p.allowed[role] = set
	}
	return p
}

// NormalizeStatus returns the canonical persisted form of a status value.
func NormalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

// Validate decides whether role may set the requested status. On success it
// returns the normalized value, which is what callers must persist. The
// protected-status check takes precedence over the role table.
func (p *TransitionPolicy) Validate(role domain.Role, requested string) (domain.TicketStatus, error) {
	normalized := NormalizeStatus(requested)

	if _, isProtected := p.protected[normalized]; isProtected {
		if !p.allowPrivilegedOverride || !role.IsPrivileged() {
			return "", ErrProtectedStatus
		}
	}

	set, ok := p.allowed[role]
	if !ok {
		return "", ErrRoleNotPermitted
	}
	if _, ok := set[normalized]; !ok {
		return "", ErrRoleNotPermitted
	}
	return domain.TicketStatus(normalized), nil
}
