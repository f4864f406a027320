package chat

import (
	"time"

	"github.com/contesthub/contesthub/internal/domain"
)

// JoinPayload is the payload of join-contest and leave-contest.
type JoinPayload struct {
	ContestID string `json:"contestId" validate:"required"`
}

// SendPayload is the payload of send-message. Identity fields a client may
// include are deliberately absent: the server stamps the verified identity
// from the connection. ClientKey is a client-generated idempotency key;
// retries with the same key resolve to the same persisted message.
type SendPayload struct {
	ContestID string `json:"contestId" validate:"required"`
	Message   string `json:"message" validate:"required,max=1000"`
	ClientKey string `json:"clientKey,omitempty"`
}

// TypingSignal is the payload of typing and stop-typing from clients. Only
// the contest id is honored; the typer's identity comes from the connection.
type TypingSignal struct {
	ContestID string `json:"contestId" validate:"required"`
}

// MessageEvent is the payload of new-message and message-ack frames. The
// field names mirror the persisted message as the dashboard clients expect
// it, with the store identifier exposed as _id.
type MessageEvent struct {
	ID        string    `json:"_id"`
	ContestID string    `json:"contestId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	UserImage string    `json:"userImage,omitempty"`
	Message   string    `json:"message"`
	ClientKey string    `json:"clientKey,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomCountPayload is the payload of room-count, sent to a room whenever its
// membership changes.
type RoomCountPayload struct {
	ContestID string `json:"contestId"`
	Count     int    `json:"count"`
}

// newMessageEvent maps a persisted message onto its wire shape.
func newMessageEvent(msg *domain.Message) MessageEvent {
	return MessageEvent{
		ID:        msg.ID,
		ContestID: msg.ContestID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		UserImage: msg.UserImage,
		Message:   msg.Body,
		ClientKey: msg.ClientKey,
		Timestamp: msg.Timestamp,
	}
}
