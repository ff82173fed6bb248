package session

import "errors"

var (
	// ErrNotFound: unknown session id. Reported to the caller, non-fatal.
	ErrNotFound = errors.New("session: not found")

	// ErrUnauthorized: the acting user is not the participant the operation
	// requires. Callers should treat this as a potential abuse signal.
	ErrUnauthorized = errors.New("session: unauthorized")

	// ErrInvalidTransition: the requested status change is not legal from
	// the session's current status.
	ErrInvalidTransition = errors.New("session: invalid transition")

	// ErrAlreadyTerminal: a duplicate lifecycle event arrived after the
	// session reached a terminal status. Idempotent no-op for the caller.
	ErrAlreadyTerminal = errors.New("session: already terminal")

	// ErrInvalidParticipants: a user tried to call themselves.
	ErrInvalidParticipants = errors.New("session: caller and callee must differ")

	// ErrStoreUnavailable: the persistence layer is unreachable. Lifecycle
	// notifications must not be fanned out when this is returned.
	ErrStoreUnavailable = errors.New("session: store unavailable")
)
