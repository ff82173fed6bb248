package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor capture is best-effort; do not block signaling flows on audit failures.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event.
	ActorUserID int64 `json:"actor_user_id,omitempty" db:"actor_user_id"`

	// SessionID is the call session the event refers to, when applicable.
	SessionID string `json:"session_id,omitempty" db:"session_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	// EventTypeUnauthorizedSignal: a connection sent a signaling event for a
	// session it does not participate in.
	EventTypeUnauthorizedSignal EventType = "unauthorized_signal"

	// EventTypeUnauthorizedTransition: a user attempted a lifecycle
	// transition reserved for the other party (e.g. answering someone
	// else's call).
	EventTypeUnauthorizedTransition EventType = "unauthorized_transition"
)
