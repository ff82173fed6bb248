package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// UserResolver is the slice of the identity service the state machine needs:
// just enough to confirm a caller/callee pair exists.
type UserResolver interface {
	ResolveUser(ctx context.Context, id int64) (bool, error)
}

// Service owns the legal status transitions for call sessions. Both the
// HTTP surface and the signaling relay go through it, so a transition has
// exactly one authority regardless of which path triggered it.
//
// Persistence and notification are one logical unit: terminal operations
// return the notification payload only after the store write succeeded.
type Service struct {
	store Store
	users UserResolver

	// clock and newID are injectable for deterministic tests.
	clock func() time.Time
	newID func() string
}

func NewService(store Store, users UserResolver) *Service {
	return &Service{
		store: store,
		users: users,
		clock: time.Now,
		newID: uuid.NewString,
	}
}

// Create opens a new pending session between two distinct, existing users.
func (s *Service) Create(ctx context.Context, callerID, calleeID int64) (CallSession, error) {
	if callerID == calleeID {
		return CallSession{}, ErrInvalidParticipants
	}
	for _, id := range []int64{callerID, calleeID} {
		ok, err := s.users.ResolveUser(ctx, id)
		if err != nil {
			return CallSession{}, err
		}
		if !ok {
			return CallSession{}, ErrNotFound
		}
	}

	cs := CallSession{
		SessionID: s.newID(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		Status:    StatusPending,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.store.Insert(ctx, cs); err != nil {
		return CallSession{}, err
	}
	return cs, nil
}

// Get looks up a session by id.
func (s *Service) Get(ctx context.Context, sessionID string) (CallSession, error) {
	cs, found, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return CallSession{}, err
	}
	if !found {
		return CallSession{}, ErrNotFound
	}
	return cs, nil
}

// Answer moves a pending session to active. Only the callee may answer.
func (s *Service) Answer(ctx context.Context, sessionID string, actingUserID int64) (CallSession, error) {
	cs, err := s.Get(ctx, sessionID)
	if err != nil {
		return CallSession{}, err
	}
	if actingUserID != cs.CalleeID {
		return CallSession{}, ErrUnauthorized
	}
	if err := s.store.UpdateStatus(ctx, sessionID, StatusPending, StatusActive, nil); err != nil {
		return CallSession{}, err
	}
	cs.Status = StatusActive
	return cs, nil
}

// Reject moves a pending session to rejected. Only the callee may reject.
func (s *Service) Reject(ctx context.Context, sessionID string, actingUserID int64) (CallSession, error) {
	cs, err := s.Get(ctx, sessionID)
	if err != nil {
		return CallSession{}, err
	}
	if actingUserID != cs.CalleeID {
		return CallSession{}, ErrUnauthorized
	}
	now := s.clock().UTC()
	if err := s.store.UpdateStatus(ctx, sessionID, StatusPending, StatusRejected, &now); err != nil {
		return CallSession{}, err
	}
	cs.Status = StatusRejected
	cs.EndedAt = &now
	return cs, nil
}

// Terminate resolves a pending or active session to ended or declined and
// returns the notification to fan out. A store failure suppresses the
// notification entirely.
func (s *Service) Terminate(ctx context.Context, sessionID string, reason Status) (CallSession, Termination, error) {
	if reason != StatusEnded && reason != StatusDeclined {
		return CallSession{}, Termination{}, ErrInvalidTransition
	}

	cs, err := s.Get(ctx, sessionID)
	if err != nil {
		return CallSession{}, Termination{}, err
	}

	// One retry covers the pending->active race: an Answer landing between
	// our read and the CAS changes the expected status but terminate is
	// still legal from active.
	for attempt := 0; attempt < 2; attempt++ {
		if cs.Status.Terminal() {
			return CallSession{}, Termination{}, ErrAlreadyTerminal
		}
		now := s.clock().UTC()
		err = s.store.UpdateStatus(ctx, sessionID, cs.Status, reason, &now)
		if err == nil {
			cs.Status = reason
			cs.EndedAt = &now
			return cs, newTermination(sessionID, reason), nil
		}
		if errors.Is(err, ErrInvalidTransition) && attempt == 0 {
			if cs, err = s.Get(ctx, sessionID); err != nil {
				return CallSession{}, Termination{}, err
			}
			continue
		}
		break
	}
	return CallSession{}, Termination{}, err
}
