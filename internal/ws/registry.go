package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/contesthub/contesthub/internal/domain"
	"github.com/contesthub/contesthub/internal/pubsub"
)

// EventHandler processes a decoded inbound event from one connection. The
// chat router implements this; the registry stays protocol-agnostic.
type EventHandler interface {
	HandleEvent(ctx context.Context, conn *Conn, ev Event)
}

// Registry tracks every live connection, assigns transient identifiers, and
// publishes lifecycle events on the bus so that the room manager and the
// presence tracker can clean up after disconnects.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	publisher pubsub.Publisher
	handler   EventHandler
	logger    *slog.Logger
}

// NewRegistry creates a connection registry publishing lifecycle events to
// the given bus.
func NewRegistry(publisher pubsub.Publisher) *Registry {
	return &Registry{
		conns:     make(map[string]*Conn),
		publisher: publisher,
		logger:    slog.Default().With("component", "ws_registry"),
	}
}

// SetHandler installs the inbound event handler. It must be called before
// the first Admit.
func (r *Registry) SetHandler(h EventHandler) { r.handler = h }

// Admit wraps a newly-established WebSocket into a tracked connection,
// assigns it a unique id, starts its pumps, and acknowledges the client with
// a connection-success event. Identity has already been verified by the
// transport handler.
func (r *Registry) Admit(sock *websocket.Conn, identity domain.Identity) *Conn {
	conn := &Conn{
		id:       uuid.NewString(),
		identity: identity,
		sock:     sock,
		send:     make(chan []byte, sendBufferSize),
		rooms:    make(map[string]struct{}),
	}

	r.mu.Lock()
	r.conns[conn.id] = conn
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Info("Connection admitted", "connectionID", conn.id, "userID", identity.UserID, "total", total)

	go conn.writePump()
	go conn.readPump(r)

	// Best-effort ack; a closed transport just ends the pumps.
	conn.SendEvent(EventConnectionSuccess, map[string]string{
		"socketId": conn.id,
		"message":  "Successfully connected to chat server",
	})

	r.publishLifecycle(TopicClientConnected, ConnectedEvent{
		ConnectionID: conn.id,
		UserID:       identity.UserID,
		Username:     identity.Username,
	}, identity.UserID)

	return conn
}

// Remove drops a connection from the registry. It is idempotent and safe to
// call from any goroutine; the disconnect event it publishes carries the
// rooms the connection was still joined to.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	total := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}

	conn.close()
	r.logger.Info("Connection removed", "connectionID", connID, "userID", conn.identity.UserID, "total", total)

	r.publishLifecycle(TopicClientDisconnected, DisconnectedEvent{
		ConnectionID: connID,
		UserID:       conn.identity.UserID,
		Username:     conn.identity.Username,
		Rooms:        conn.JoinedRooms(),
	}, conn.identity.UserID)
}

// Get returns a live connection by id.
func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll removes every connection; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Remove(id)
	}
}

// dispatch decodes a raw frame and hands it to the event handler.
func (r *Registry) dispatch(conn *Conn, frame []byte) {
	if r.handler == nil {
		return
	}

	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil || ev.Name == "" {
		r.logger.Debug("Dropping malformed frame", "connectionID", conn.id, "error", err)
		conn.SendEvent(EventError, ErrorPayload{Code: ErrCodeBadEvent, Message: "malformed event frame"})
		return
	}

	r.handler.HandleEvent(context.Background(), conn, ev)
}

func (r *Registry) publishLifecycle(topic string, payload any, userID string) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("Failed to marshal lifecycle event", "topic", topic, "error", err)
		return
	}
	msg := pubsub.Message{Topic: topic, UserID: userID, Payload: data}
	if err := r.publisher.Publish(context.Background(), msg); err != nil {
		r.logger.Error("Failed to publish lifecycle event", "topic", topic, "error", err)
	}
}
