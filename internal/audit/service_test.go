package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAppend_FillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }

	if err := svc.UnauthorizedSignal(context.Background(), 7, "sid-1", "offer for foreign session"); err != nil {
		t.Fatalf("append: %v", err)
	}

	events := repo.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp filled: %+v", e)
	}
	if e.Type != EventTypeUnauthorizedSignal || e.ActorUserID != 7 || e.SessionID != "sid-1" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestAppend_RejectsMissingType(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.Append(context.Background(), Event{}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}
