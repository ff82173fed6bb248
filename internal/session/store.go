package session

import (
	"context"
	"time"
)

// Store is the persistence contract for call sessions.
//
// UpdateStatus has compare-and-swap semantics: the write succeeds only if
// the row's current status equals expected. This serializes concurrent
// answer/reject/terminate attempts on one session — whichever write lands
// second observes the first's result and fails.
type Store interface {
	Insert(ctx context.Context, s CallSession) error
	Get(ctx context.Context, sessionID string) (CallSession, bool, error)

	// UpdateStatus returns ErrAlreadyTerminal when the current status is
	// terminal, ErrInvalidTransition when it is merely different from
	// expected, and ErrNotFound for an unknown session id.
	UpdateStatus(ctx context.Context, sessionID string, expected, next Status, endedAt *time.Time) error
}
