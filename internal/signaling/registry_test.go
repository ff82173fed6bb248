package signaling

import (
	"sort"
	"testing"
)

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	ep := &stubEndpoint{id: "e1", userID: 1}

	r.Join("session:s1", ep)
	r.Join("session:s1", ep)

	if got := len(r.Members("session:s1")); got != 1 {
		t.Fatalf("expected 1 member after double join, got %d", got)
	}
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	r := NewRegistry()
	ep := &stubEndpoint{id: "e1", userID: 1}

	r.Join("session:s1", ep)
	r.Leave("session:s1", ep)

	if got := len(r.Members("session:s1")); got != 0 {
		t.Fatalf("expected empty room, got %d members", got)
	}
	// Leaving again, or leaving a room never joined, is a no-op.
	r.Leave("session:s1", ep)
	r.Leave("session:never", ep)
}

func TestMembersUnknownRoomIsEmptyNotError(t *testing.T) {
	r := NewRegistry()
	if got := r.Members("session:ghost"); len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %d", len(got))
	}
}

func TestIsMember(t *testing.T) {
	r := NewRegistry()
	e1 := &stubEndpoint{id: "e1", userID: 1}
	e2 := &stubEndpoint{id: "e2", userID: 2}

	r.Join("session:s1", e1)
	if !r.IsMember("session:s1", e1) {
		t.Fatalf("e1 should be a member")
	}
	if r.IsMember("session:s1", e2) {
		t.Fatalf("e2 should not be a member")
	}
}

func TestLeaveAllReturnsEveryRoom(t *testing.T) {
	r := NewRegistry()
	ep := &stubEndpoint{id: "e1", userID: 1}
	other := &stubEndpoint{id: "e2", userID: 2}

	r.Join(UserRoom(1), ep)
	r.Join("session:s1", ep)
	r.Join("session:s1", other)

	rooms := r.LeaveAll(ep)
	sort.Strings(rooms)
	if len(rooms) != 2 || rooms[0] != "session:s1" || rooms[1] != UserRoom(1) {
		t.Fatalf("unexpected rooms left: %v", rooms)
	}

	if r.IsMember("session:s1", ep) || r.IsMember(UserRoom(1), ep) {
		t.Fatalf("endpoint still a member after LeaveAll")
	}
	if !r.IsMember("session:s1", other) {
		t.Fatalf("other endpoint must be untouched")
	}

	// Second LeaveAll finds nothing.
	if rooms := r.LeaveAll(ep); len(rooms) != 0 {
		t.Fatalf("expected no rooms on second LeaveAll, got %v", rooms)
	}
}

func TestRoomNamespaces(t *testing.T) {
	if UserRoom(5) == SessionRoom("5") {
		t.Fatalf("user and session namespaces must not collide")
	}
}
