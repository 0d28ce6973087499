package domain

import "time"

// Role enumerates actor roles. Role is the sole authorization axis for the
// visibility and transition policies.
type Role string

const (
	RoleSuperadmin  Role = "superadmin"
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinador"
	RoleOperative   Role = "operativo"
	RoleClient      Role = "cliente"
)

// IsPrivileged reports whether the role bypasses visibility scoping.
func (r Role) IsPrivileged() bool {
	return r == RoleSuperadmin || r == RoleAdmin
}

// Actor is the authenticated identity acting on tickets.
type Actor struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
