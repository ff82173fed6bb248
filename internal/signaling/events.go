package signaling

import "encoding/json"

// Inbound event names. These are wire-compatible with the browser client
// and must not change.
const (
	EventJoinUserRoom = "join_user_room"
	EventJoinCall     = "join_call"
	EventLeaveCall    = "leave_call"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice_candidate"
	EventIncomingCall = "incoming_call"
	EventCallAnswered = "call_answered"
	EventCallRejected = "call_rejected"
	EventCallEnded    = "call_ended"
	EventCallDeclined = "call_declined"
	EventUserBusy     = "user_busy"
)

// Outbound event names.
const (
	EventIncomingCallNotification = "incoming_call_notification"
	EventCallTerminated           = "call_terminated"
	EventUserJoined               = "user_joined"
	EventUserLeft                 = "user_left"
	EventError                    = "error"
)

// envelope is the decoded header of an inbound frame. Negotiation payloads
// carry additional fields that are forwarded verbatim, never parsed here.
type envelope struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	CalleeID   int64  `json:"callee_id"`
	CallerName string `json:"caller_name"`
}

// Error codes sent back to the offending endpoint only, never broadcast.
const (
	CodeBadEvent         = "bad_event"
	CodeNotFound         = "not_found"
	CodeUnauthorized     = "unauthorized"
	CodeAlreadyResolved  = "call_already_resolved"
	CodeStoreUnavailable = "store_unavailable"
)

func marshalFrame(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// All outbound frame types are plain structs; this cannot fail.
		panic(err)
	}
	return b
}

func errorFrame(code, message string) []byte {
	return marshalFrame(struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message,omitempty"`
	}{Type: EventError, Code: code, Message: message})
}

func incomingCallFrame(sessionID, callerName string, callerID int64) []byte {
	return marshalFrame(struct {
		Type       string `json:"type"`
		SessionID  string `json:"session_id"`
		CallerName string `json:"caller_name"`
		CallerID   int64  `json:"caller_id"`
	}{Type: EventIncomingCallNotification, SessionID: sessionID, CallerName: callerName, CallerID: callerID})
}

func callTerminatedFrame(sessionID, reason, message string) []byte {
	return marshalFrame(struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
		Reason    string `json:"reason"`
		Message   string `json:"message"`
	}{Type: EventCallTerminated, SessionID: sessionID, Reason: reason, Message: message})
}

func userEventFrame(event, username string) []byte {
	return marshalFrame(struct {
		Type string `json:"type"`
		User string `json:"user"`
	}{Type: event, User: username})
}
