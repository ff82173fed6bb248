package session

import "time"

// Status is the closed set of call-session states. Raw strings only cross
// this boundary inside the store adapters.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusRejected Status = "rejected"
	StatusDeclined Status = "declined"
	StatusEnded    Status = "ended"

	// StatusBusy is a termination reason delivered to peers; it is never
	// persisted as a stored status. The session a busy callee never joined
	// stays pending until resolved by decline or end.
	StatusBusy Status = "busy"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusDeclined, StatusEnded:
		return true
	default:
		return false
	}
}

// ParseStatus converts the storage representation back to the enum.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusActive, StatusRejected, StatusDeclined, StatusEnded:
		return Status(raw), true
	default:
		return "", false
	}
}

// CallSession binds a caller and callee for the lifetime of one call.
//
// Invariants:
// - Created only in StatusPending with both participants resolved.
// - CallerID != CalleeID.
// - EndedAt is set exactly once, when a terminal status is reached.
// - SessionID is immutable and is the sole lookup key.
type CallSession struct {
	SessionID string     `json:"session_id" db:"session_id"`
	CallerID  int64      `json:"caller_id" db:"caller_id"`
	CalleeID  int64      `json:"callee_id" db:"callee_id"`
	Status    Status     `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// HasParticipant reports whether id is one of the two call parties.
func (s CallSession) HasParticipant(id int64) bool {
	return id == s.CallerID || id == s.CalleeID
}

// Termination is the call_terminated notification emitted alongside a
// terminal transition. The relay fans it out to the full session room.
type Termination struct {
	SessionID string `json:"session_id"`
	Reason    Status `json:"reason"`
	Message   string `json:"message"`
}

func newTermination(sessionID string, reason Status) Termination {
	return Termination{SessionID: sessionID, Reason: reason, Message: terminationMessage(reason)}
}

// BusyNotice builds the busy termination notice. There is no store write
// behind it: the callee never agreed to join the session.
func BusyNotice(sessionID string) Termination {
	return newTermination(sessionID, StatusBusy)
}

func terminationMessage(reason Status) string {
	switch reason {
	case StatusEnded:
		return "Call ended"
	case StatusDeclined:
		return "Call was declined"
	case StatusBusy:
		return "User is busy"
	case StatusRejected:
		return "Call was rejected"
	default:
		return "Call terminated"
	}
}
