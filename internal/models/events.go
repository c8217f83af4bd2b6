package models

import "time"

// Socket event names. Admin-room events carry the request kind in their
// name; the member room only ever sees EventRequestResolved.
const (
	EventNewLoginRequest           = "new-login-request"
	EventNewVerificationRequest    = "new-verification-request"
	EventUpdateLoginRequest        = "update-login-request"
	EventUpdateVerificationRequest = "update-verification-request"
	EventCancelLoginRequest        = "cancel-login-request"
	EventCancelVerificationRequest = "cancel-verification-request"
	EventRequestResolved           = "request-resolved"

	EventJoined          = "joined"
	EventMessagesDropped = "messages_dropped"
	EventServerShutdown  = "server_shutdown"
)

// Event is the envelope written to every socket.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// RequestResolution is the payload of update and member resolution events.
type RequestResolution struct {
	ID         uint          `json:"id"`
	Status     RequestStatus `json:"status"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	ResolvedBy *uint         `json:"resolved_by,omitempty"`
}

// RequestRef identifies a request in cancellation events.
type RequestRef struct {
	ID uint `json:"id"`
}

// CreatedEvent returns the admin-room event name announcing a new request.
func CreatedEvent(kind RequestKind) string {
	if kind == RequestKindVerification {
		return EventNewVerificationRequest
	}
	return EventNewLoginRequest
}

// ResolvedEvent returns the admin-room event name for an approve or deny.
func ResolvedEvent(kind RequestKind) string {
	if kind == RequestKindVerification {
		return EventUpdateVerificationRequest
	}
	return EventUpdateLoginRequest
}

// CancelledEvent returns the admin-room event name for a member withdrawal.
func CancelledEvent(kind RequestKind) string {
	if kind == RequestKindVerification {
		return EventCancelVerificationRequest
	}
	return EventCancelLoginRequest
}

// EventKind reports the request kind an admin-room event refers to and
// whether the event adds to (true) or removes from the pending queue.
func EventKind(event string) (kind RequestKind, adds bool, ok bool) {
	switch event {
	case EventNewLoginRequest:
		return RequestKindLogin, true, true
	case EventNewVerificationRequest:
		return RequestKindVerification, true, true
	case EventUpdateLoginRequest, EventCancelLoginRequest:
		return RequestKindLogin, false, true
	case EventUpdateVerificationRequest, EventCancelVerificationRequest:
		return RequestKindVerification, false, true
	}
	return "", false, false
}
