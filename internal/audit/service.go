package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal abuse signals.
//
// Callers should treat audit logging as best-effort: a failed append is
// logged by the caller but never fails the triggering operation.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// UnauthorizedSignal records a signaling event for a session the actor does
// not participate in.
func (s *Service) UnauthorizedSignal(ctx context.Context, actorUserID int64, sessionID, message string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeUnauthorizedSignal,
		ActorUserID: actorUserID,
		SessionID:   sessionID,
		Message:     message,
	})
}

// UnauthorizedTransition records a lifecycle attempt by the wrong party.
func (s *Service) UnauthorizedTransition(ctx context.Context, actorUserID int64, sessionID, message string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeUnauthorizedTransition,
		ActorUserID: actorUserID,
		SessionID:   sessionID,
		Message:     message,
	})
}
