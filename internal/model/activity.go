package model

import "time"

// SessionState is the session marker stored with every access-log row.
type SessionState string

const (
	SessionActive SessionState = "activa"
	SessionClosed SessionState = "cerrada"
)

// Action tags written by the session subsystem.
const (
	ActionActivity = "actividad"
	ActionLogin    = "inicio de sesión"
	ActionLogout   = "cierre de sesión"
)

// ActivityRecord mirrors one row of the `access_log` table. Rows are
// appended and never updated.
//
// Subject is nil for legacy rows that could not be linked to a user or a
// student; otherwise exactly one of the user_id/student_id columns is set.
type ActivityRecord struct {
	ID          uint64       // access_log.id
	Subject     Subject      // access_log.user_id or access_log.student_id
	DisplayName string       // access_log.display_name
	AccessKind  AccessKind   // access_log.access_kind
	Action      string       // access_log.action
	Description string       // access_log.description
	OccurredAt  time.Time    // access_log.occurred_at
	State       SessionState // access_log.session_state
	OriginIP    string       // access_log.origin_ip
}

// Active reports whether the row keeps a session open.
func (r ActivityRecord) Active() bool { return r.State == SessionActive }

// ActivityFilter narrows access-log listings. Zero values are ignored.
type ActivityFilter struct {
	Subject    Subject
	AccessKind AccessKind
	Action     string
	State      SessionState
	From       time.Time
	To         time.Time
}
