package domain

import "time"

// ChangeSource identifies which UI surface originated a mutation.
type ChangeSource string

const (
	SourceTable   ChangeSource = "TABLE"
	SourcePlanner ChangeSource = "PLANNER"
	SourceModal   ChangeSource = "MODAL"
)

// ValidSource reports whether s is a member of the closed source enum.
func ValidSource(s ChangeSource) bool {
	switch s {
	case SourceTable, SourcePlanner, SourceModal:
		return true
	}
	return false
}

// AuditEntry is an append-only record of one ticket mutation. Entries are
// never edited or deleted; corrections require new entries.
type AuditEntry struct {
	ID        int64
	TicketID  int64
	ActorID   int64
	Source    ChangeSource
	Changes   map[string]any
	CreatedAt time.Time
}
