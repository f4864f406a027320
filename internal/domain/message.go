package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLen is the hard limit on a message body, enforced both at the
// realtime layer and the REST layer.
const MaxMessageLen = 1000

// Message is a persisted chat message. Once created it is immutable except
// for the soft-delete flag; the store treats it as append-only.
type Message struct {
	ID        string    `json:"id,omitempty"`
	ContestID string    `json:"contestId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	UserImage string    `json:"userImage,omitempty"`
	Body      string    `json:"message"`
	// ClientKey is a client-generated idempotency key. Appends with the same
	// key for the same contest resolve to the same persisted row.
	ClientKey string    `json:"clientKey,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	IsDeleted bool      `json:"isDeleted"`
}

// ValidateBody checks the message body against the core invariant:
// non-empty after trimming and at most MaxMessageLen characters.
func ValidateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrInvalidInput
	}
	if utf8.RuneCountInString(body) > MaxMessageLen {
		return ErrInvalidInput
	}
	return nil
}
