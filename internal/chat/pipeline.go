package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/contesthub/contesthub/internal/domain"
	"github.com/contesthub/contesthub/internal/ws"
)

// Broadcaster is the slice of the room manager the pipeline needs.
type Broadcaster interface {
	Broadcast(roomID string, payload []byte, excludeConnID string)
}

// Pipeline accepts an outbound message from one connection, validates it,
// persists it, and fans the stamped record out to the rest of the room.
// Persistence strictly precedes broadcast: a message that failed to reach
// the store is never delivered to other clients.
type Pipeline struct {
	store  MessageStore
	rooms  Broadcaster
	logger *slog.Logger
}

// NewPipeline creates the broadcast pipeline.
func NewPipeline(store MessageStore, rooms Broadcaster) *Pipeline {
	return &Pipeline{
		store:  store,
		rooms:  rooms,
		logger: slog.Default().With("component", "chat_pipeline"),
	}
}

// Send validates, persists, and broadcasts one message. The sender's own
// connection is excluded from the fan-out — it already has the message via
// the returned record and its optimistic local append. Errors map onto the
// core taxonomy and are surfaced to the sender only.
func (p *Pipeline) Send(ctx context.Context, senderConnID string, ident domain.Identity, contestID, body, clientKey string) (*domain.Message, error) {
	if !ident.Valid() {
		return nil, domain.ErrUnauthenticated
	}
	if contestID == "" {
		return nil, fmt.Errorf("%w: missing contest id", domain.ErrInvalidInput)
	}
	if err := domain.ValidateBody(body); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ContestID: contestID,
		UserID:    ident.UserID,
		Username:  ident.Username,
		UserImage: ident.UserImage,
		Body:      body,
		ClientKey: clientKey,
	}

	persisted, err := p.store.Append(ctx, msg)
	if err != nil {
		p.logger.Error("Message append failed", "contestId", contestID, "userID", ident.UserID, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if persisted.Timestamp.IsZero() {
		persisted.Timestamp = time.Now().UTC()
	}

	frame, err := ws.MarshalEvent(ws.EventNewMessage, newMessageEvent(persisted))
	if err != nil {
		// The message is durable; only the fan-out failed to encode.
		p.logger.Error("Failed to marshal new-message event", "error", err)
		return persisted, nil
	}
	p.rooms.Broadcast(contestID, frame, senderConnID)

	return persisted, nil
}

// History returns up to limit messages for the contest in chronological
// order, reversing the store's native newest-first page.
func (p *Pipeline) History(ctx context.Context, contestID string, limit int, before time.Time) ([]domain.Message, error) {
	messages, err := p.store.ListRecent(ctx, contestID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
