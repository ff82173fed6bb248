package signaling

import (
	"fmt"
	"sync"
)

// Endpoint is one live connection. The websocket adapter implements it; the
// registry and relay only see this interface.
type Endpoint interface {
	// ID is unique per connection (a user may hold several).
	ID() string
	UserID() int64
	Username() string

	// Send enqueues a frame for delivery. It must not block on the peer:
	// a slow recipient fails its own send without affecting others.
	Send(frame []byte) error
}

// Two room namespaces exist because an incoming-call ring must reach the
// callee before the callee has joined the session room.
func UserRoom(userID int64) string     { return fmt.Sprintf("user:%d", userID) }
func SessionRoom(sessionID string) string { return "session:" + sessionID }

// Registry maps room names to the set of connected endpoints occupying
// them. Pure in-memory bookkeeping; all methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[Endpoint]struct{}

	// byEndpoint is the reverse index that makes LeaveAll O(rooms joined).
	byEndpoint map[Endpoint]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:      make(map[string]map[Endpoint]struct{}),
		byEndpoint: make(map[Endpoint]map[string]struct{}),
	}
}

// Join adds the endpoint to a room. Joining twice is a no-op.
func (r *Registry) Join(room string, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[Endpoint]struct{})
		r.rooms[room] = members
	}
	members[ep] = struct{}{}

	joined, ok := r.byEndpoint[ep]
	if !ok {
		joined = make(map[string]struct{})
		r.byEndpoint[ep] = joined
	}
	joined[room] = struct{}{}
}

// Leave removes the endpoint from a room, deleting the room when it
// empties. Leaving a room the endpoint is not in is a no-op.
func (r *Registry) Leave(room string, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, ep)
}

func (r *Registry) leaveLocked(room string, ep Endpoint) {
	if members, ok := r.rooms[room]; ok {
		delete(members, ep)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if joined, ok := r.byEndpoint[ep]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.byEndpoint, ep)
		}
	}
}

// Members returns a snapshot of a room's occupants. Unknown rooms yield an
// empty slice, not an error. No ordering is guaranteed.
func (r *Registry) Members(room string) []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]Endpoint, 0, len(members))
	for ep := range members {
		out = append(out, ep)
	}
	return out
}

// IsMember reports whether the endpoint currently occupies the room.
func (r *Registry) IsMember(room string, ep Endpoint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][ep]
	return ok
}

// LeaveAll removes the endpoint from every room it occupies and returns the
// rooms it left. Must be called exactly once per disconnect; skipping it
// leaks membership and leaves phantom broadcast targets behind.
func (r *Registry) LeaveAll(ep Endpoint) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.byEndpoint[ep]
	out := make([]string, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	for _, room := range out {
		r.leaveLocked(room, ep)
	}
	return out
}
