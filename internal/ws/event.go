package ws

import "encoding/json"

// Event names accepted from clients.
const (
	EventJoinContest  = "join-contest"
	EventLeaveContest = "leave-contest"
	EventSendMessage  = "send-message"
	EventTyping       = "typing"
	EventStopTyping   = "stop-typing"
	EventPing         = "ping"
)

// Event names sent to clients.
const (
	EventConnectionSuccess = "connection-success"
	EventNewMessage        = "new-message"
	EventMessageAck        = "message-ack"
	EventUserTyping        = "user-typing"
	EventUserStopTyping    = "user-stop-typing"
	EventRoomCount         = "room-count"
	EventPong              = "pong"
	EventError             = "error"
)

// Event is the wire envelope for every realtime frame, in both directions.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalEvent builds a wire frame from an event name and payload value.
func MarshalEvent(name string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Event{Name: name, Payload: raw})
}

// ErrorPayload is the payload of an "error" event returned to the
// originating client only. Codes mirror the core error taxonomy.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for ErrorPayload.
const (
	ErrCodeInvalidInput     = "invalid-input"
	ErrCodeStoreUnavailable = "store-unavailable"
	ErrCodeUnauthenticated  = "unauthenticated"
	ErrCodeBadEvent         = "bad-event"
)
