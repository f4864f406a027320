package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/contesthub/contesthub/internal/database"
	"github.com/contesthub/contesthub/internal/domain"
)

// MessageStore is the durable message store collaborator consumed by the
// broadcast pipeline and the history endpoints. Semantics are append-only:
// messages are never mutated after creation (soft-delete excepted, which is
// outside this service's write path).
type MessageStore interface {
	// Append persists a message and returns the stamped record (id and
	// server timestamp filled in). Appends carrying a ClientKey already seen
	// for the same contest return the previously persisted record.
	Append(ctx context.Context, msg *domain.Message) (*domain.Message, error)

	// ListRecent returns up to limit messages for the contest, newest
	// first, optionally only those strictly older than before. Soft-deleted
	// rows are excluded.
	ListRecent(ctx context.Context, contestID string, limit int, before time.Time) ([]domain.Message, error)
}

// SurrealStore implements MessageStore on SurrealDB.
type SurrealStore struct {
	db *surrealdb.DB
}

// NewSurrealStore creates a message store over an established connection.
func NewSurrealStore(db *surrealdb.DB) *SurrealStore {
	return &SurrealStore{db: db}
}

// Append persists a message. The idempotency check and the create are two
// statements; a racing duplicate can still slip through, which is acceptable
// for a client-retry guard (the key exists to stop the common retry case,
// not to be a uniqueness constraint).
func (s *SurrealStore) Append(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if msg.ClientKey != "" {
		existing, err := database.QueryOne[domain.Message](ctx, s.db,
			"SELECT * FROM chat_message WHERE contestId = $contestId AND clientKey = $clientKey",
			map[string]any{
				"contestId": msg.ContestID,
				"clientKey": msg.ClientKey,
			})
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup failed: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	query := `
		CREATE chat_message CONTENT {
			contestId: $contestId,
			userId: $userId,
			username: $username,
			userImage: $userImage,
			message: $message,
			clientKey: $clientKey,
			timestamp: time::now(),
			isDeleted: false
		} RETURN AFTER
	`
	params := map[string]any{
		"contestId": msg.ContestID,
		"userId":    msg.UserID,
		"username":  msg.Username,
		"userImage": msg.UserImage,
		"message":   msg.Body,
		"clientKey": msg.ClientKey,
	}

	created, err := database.QueryOne[domain.Message](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	if created == nil {
		return nil, fmt.Errorf("message was not created")
	}
	return created, nil
}

// ListRecent returns the newest messages first; callers that display history
// reverse the page into chronological order.
func (s *SurrealStore) ListRecent(ctx context.Context, contestID string, limit int, before time.Time) ([]domain.Message, error) {
	query := "SELECT * FROM chat_message WHERE contestId = $contestId AND isDeleted = false"
	params := map[string]any{
		"contestId": contestID,
		"limit":     limit,
	}
	if !before.IsZero() {
		query += " AND timestamp < $before"
		params["before"] = before.UTC().Format(time.RFC3339Nano)
	}
	query += " ORDER BY timestamp DESC LIMIT $limit"

	messages, err := database.Query[domain.Message](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}
