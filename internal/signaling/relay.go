package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"callbridge/internal/audit"
	"callbridge/internal/session"
)

// Presence is the advisory real-time state the relay maintains as a side
// effect of connection and call lifecycle. Failures are logged, never fatal.
type Presence interface {
	Online(ctx context.Context, userID int64) error
	Offline(ctx context.Context, userID int64) error
	BeginCall(ctx context.Context, userID int64, sessionID string) (bool, error)
	EndCall(ctx context.Context, userID int64, sessionID string) error
}

// Relay routes signaling events between connected endpoints. Negotiation
// payloads are forwarded verbatim; lifecycle events additionally go through
// the session service so the persisted status stays consistent with what
// peers are told.
type Relay struct {
	registry *Registry
	sessions *session.Service
	presence Presence
	audit    *audit.Service
	log      *slog.Logger
}

func NewRelay(registry *Registry, sessions *session.Service, presence Presence, auditor *audit.Service, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		registry: registry,
		sessions: sessions,
		presence: presence,
		audit:    auditor,
		log:      log,
	}
}

// HandleEvent processes one inbound frame from an endpoint. It never
// panics and never closes the connection; malformed input costs the sender
// an error frame at most.
func (r *Relay) HandleEvent(ctx context.Context, ep Endpoint, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.log.Warn("malformed signaling frame", "user_id", ep.UserID(), "err", err)
		r.sendTo(ep, errorFrame(CodeBadEvent, "malformed event"))
		return
	}

	switch env.Type {
	case EventJoinUserRoom:
		r.handleJoinUserRoom(ctx, ep)
	case EventJoinCall:
		r.handleJoinCall(ctx, ep, env)
	case EventLeaveCall:
		r.handleLeaveCall(ctx, ep, env)
	case EventOffer, EventAnswer, EventICECandidate:
		r.handleNegotiation(ctx, ep, env, data)
	case EventIncomingCall:
		r.handleIncomingCall(ctx, ep, env)
	case EventCallAnswered:
		r.handleCallAnswered(ctx, ep, env, data)
	case EventCallRejected:
		r.handleCallRelay(ctx, ep, env, data)
	case EventCallEnded:
		r.handleTerminate(ctx, ep, env, session.StatusEnded)
	case EventCallDeclined:
		r.handleTerminate(ctx, ep, env, session.StatusDeclined)
	case EventUserBusy:
		r.handleUserBusy(ctx, ep, env)
	default:
		r.log.Warn("unknown signaling event", "type", env.Type, "user_id", ep.UserID())
		r.sendTo(ep, errorFrame(CodeBadEvent, "unknown event type"))
	}
}

// Disconnect runs teardown for an endpoint. It must be called exactly once,
// synchronously, when the connection drops.
func (r *Relay) Disconnect(ctx context.Context, ep Endpoint) {
	rooms := r.registry.LeaveAll(ep)
	for _, room := range rooms {
		if room == UserRoom(ep.UserID()) {
			continue
		}
		r.broadcast(room, userEventFrame(EventUserLeft, ep.Username()), nil)
	}
	if r.presence != nil {
		if err := r.presence.Offline(ctx, ep.UserID()); err != nil {
			r.log.Warn("presence offline failed", "user_id", ep.UserID(), "err", err)
		}
	}
	r.log.Info("endpoint disconnected", "user_id", ep.UserID(), "rooms_left", len(rooms))
}

func (r *Relay) handleJoinUserRoom(ctx context.Context, ep Endpoint) {
	r.registry.Join(UserRoom(ep.UserID()), ep)
	if r.presence != nil {
		if err := r.presence.Online(ctx, ep.UserID()); err != nil {
			r.log.Warn("presence online failed", "user_id", ep.UserID(), "err", err)
		}
	}
}

func (r *Relay) handleJoinCall(ctx context.Context, ep Endpoint, env envelope) {
	if env.SessionID == "" {
		r.sendTo(ep, errorFrame(CodeBadEvent, "session_id required"))
		return
	}
	room := SessionRoom(env.SessionID)
	r.registry.Join(room, ep)
	r.broadcast(room, userEventFrame(EventUserJoined, ep.Username()), ep)
}

func (r *Relay) handleLeaveCall(ctx context.Context, ep Endpoint, env envelope) {
	if env.SessionID == "" {
		r.sendTo(ep, errorFrame(CodeBadEvent, "session_id required"))
		return
	}
	room := SessionRoom(env.SessionID)
	r.registry.Leave(room, ep)
	r.broadcast(room, userEventFrame(EventUserLeft, ep.Username()), nil)
}

// handleNegotiation forwards offer/answer/ice_candidate payloads verbatim
// to the other occupants of the session room. The payload is opaque; codecs
// and SDP internals are none of the server's business.
func (r *Relay) handleNegotiation(ctx context.Context, ep Endpoint, env envelope, raw []byte) {
	if env.SessionID == "" {
		r.sendTo(ep, errorFrame(CodeBadEvent, "session_id required"))
		return
	}
	room := SessionRoom(env.SessionID)
	if !r.registry.IsMember(room, ep) {
		r.auditUnauthorizedSignal(ctx, ep, env.SessionID, "negotiation event from non-member")
		r.sendTo(ep, errorFrame(CodeUnauthorized, "not a member of this call"))
		return
	}
	r.broadcast(room, raw, ep)
}

// handleIncomingCall rings the callee. The notification goes to the
// callee's user room, not the session room: at ring time the callee has not
// joined the session room yet.
func (r *Relay) handleIncomingCall(ctx context.Context, ep Endpoint, env envelope) {
	if env.SessionID == "" || env.CalleeID == 0 || env.CallerName == "" {
		r.sendTo(ep, errorFrame(CodeBadEvent, "session_id, callee_id and caller_name required"))
		return
	}
	frame := incomingCallFrame(env.SessionID, env.CallerName, ep.UserID())
	r.broadcast(UserRoom(env.CalleeID), frame, nil)
}

func (r *Relay) handleCallAnswered(ctx context.Context, ep Endpoint, env envelope, raw []byte) {
	cs, ok := r.participantSession(ctx, ep, env)
	if !ok {
		return
	}
	if r.presence != nil {
		for _, uid := range []int64{cs.CallerID, cs.CalleeID} {
			if acquired, err := r.presence.BeginCall(ctx, uid, cs.SessionID); err != nil {
				r.log.Warn("busy slot acquire failed", "user_id", uid, "err", err)
			} else if !acquired {
				r.log.Warn("busy slot already held", "user_id", uid, "session_id", cs.SessionID)
			}
		}
	}
	r.broadcast(SessionRoom(cs.SessionID), raw, ep)
}

// handleCallRelay forwards lifecycle echoes (call_rejected) to the other
// room occupants without touching the store; the persisted transition
// happens through the HTTP surface.
func (r *Relay) handleCallRelay(ctx context.Context, ep Endpoint, env envelope, raw []byte) {
	cs, ok := r.participantSession(ctx, ep, env)
	if !ok {
		return
	}
	r.broadcast(SessionRoom(cs.SessionID), raw, ep)
}

// handleTerminate resolves the session and, only after the store write
// succeeded, tells the full room — sender included — so every party lands
// in the same terminal UI state.
func (r *Relay) handleTerminate(ctx context.Context, ep Endpoint, env envelope, reason session.Status) {
	cs, ok := r.participantSession(ctx, ep, env)
	if !ok {
		return
	}

	_, notice, err := r.sessions.Terminate(ctx, cs.SessionID, reason)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrAlreadyTerminal), errors.Is(err, session.ErrInvalidTransition):
			r.sendTo(ep, errorFrame(CodeAlreadyResolved, "call already resolved"))
		case errors.Is(err, session.ErrStoreUnavailable):
			r.log.Error("terminate not persisted, suppressing fan-out", "session_id", cs.SessionID, "err", err)
			r.sendTo(ep, errorFrame(CodeStoreUnavailable, "try again"))
		default:
			r.sendTo(ep, errorFrame(CodeNotFound, "unknown session"))
		}
		return
	}

	r.releaseCallSlots(ctx, cs)
	r.broadcast(SessionRoom(cs.SessionID), callTerminatedFrame(notice.SessionID, string(notice.Reason), notice.Message), nil)
}

// handleUserBusy reports a busy callee to the session room. There is no
// store write: the session the callee never agreed to join stays pending.
func (r *Relay) handleUserBusy(ctx context.Context, ep Endpoint, env envelope) {
	cs, ok := r.participantSession(ctx, ep, env)
	if !ok {
		return
	}
	notice := session.BusyNotice(cs.SessionID)
	r.broadcast(SessionRoom(cs.SessionID), callTerminatedFrame(notice.SessionID, string(notice.Reason), notice.Message), nil)
}

// participantSession loads the session named by the event and verifies the
// sender is one of its two parties. Lifecycle events are gated on session
// participation rather than room membership because a rejecting callee
// never joins the session room.
func (r *Relay) participantSession(ctx context.Context, ep Endpoint, env envelope) (session.CallSession, bool) {
	if env.SessionID == "" {
		r.sendTo(ep, errorFrame(CodeBadEvent, "session_id required"))
		return session.CallSession{}, false
	}
	cs, err := r.sessions.Get(ctx, env.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			r.sendTo(ep, errorFrame(CodeNotFound, "unknown session"))
		} else {
			r.sendTo(ep, errorFrame(CodeStoreUnavailable, "try again"))
		}
		return session.CallSession{}, false
	}
	if !cs.HasParticipant(ep.UserID()) {
		r.auditUnauthorizedSignal(ctx, ep, env.SessionID, "lifecycle event from non-participant")
		r.sendTo(ep, errorFrame(CodeUnauthorized, "not a participant of this call"))
		return session.CallSession{}, false
	}
	return cs, true
}

func (r *Relay) releaseCallSlots(ctx context.Context, cs session.CallSession) {
	if r.presence == nil {
		return
	}
	for _, uid := range []int64{cs.CallerID, cs.CalleeID} {
		if err := r.presence.EndCall(ctx, uid, cs.SessionID); err != nil {
			r.log.Warn("busy slot release failed", "user_id", uid, "err", err)
		}
	}
}

// broadcast fans a frame out to every current member of a room, optionally
// excluding one endpoint. An empty room is a silent no-op: the other party
// may simply not have connected yet. Each send is failure-isolated.
func (r *Relay) broadcast(room string, frame []byte, exclude Endpoint) {
	for _, member := range r.registry.Members(room) {
		if member == exclude {
			continue
		}
		if err := member.Send(frame); err != nil {
			r.log.Warn("send failed", "room", room, "user_id", member.UserID(), "err", err)
		}
	}
}

func (r *Relay) sendTo(ep Endpoint, frame []byte) {
	if err := ep.Send(frame); err != nil {
		r.log.Warn("send failed", "user_id", ep.UserID(), "err", err)
	}
}

func (r *Relay) auditUnauthorizedSignal(ctx context.Context, ep Endpoint, sessionID, message string) {
	r.log.Warn("unauthorized signaling event", "user_id", ep.UserID(), "session_id", sessionID, "detail", message)
	if r.audit == nil {
		return
	}
	if err := r.audit.UnauthorizedSignal(ctx, ep.UserID(), sessionID, message); err != nil {
		r.log.Warn("audit append failed", "err", err)
	}
}
