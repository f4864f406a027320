package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/contesthub/contesthub/internal/domain"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Per-connection outbound buffer. A member whose buffer fills is
	// considered stuck and gets dropped rather than stalling the room.
	sendBufferSize = 256
	// Largest frame we accept from a client.
	maxFrameSize = 32 << 10
)

// Conn is a single admitted client connection. It owns the read and write
// pumps for its underlying WebSocket and tracks which rooms it has joined.
type Conn struct {
	id       string
	identity domain.Identity
	sock     *websocket.Conn

	mu   sync.RWMutex
	send chan []byte

	roomsMu sync.Mutex
	rooms   map[string]struct{}
}

// ID returns the transient identifier assigned at admit time.
func (c *Conn) ID() string { return c.id }

// Identity returns the verified identity attached at admit time.
func (c *Conn) Identity() domain.Identity { return c.identity }

// Send enqueues a frame without blocking. It returns false when the
// connection is gone or its buffer is full; the caller decides whether that
// warrants eviction.
func (c *Conn) Send(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.send == nil {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		slog.Warn("Connection send buffer full, dropping frame", "connectionID", c.id)
		return false
	}
}

// SendEvent marshals and enqueues an event frame, best-effort.
func (c *Conn) SendEvent(name string, payload any) {
	frame, err := MarshalEvent(name, payload)
	if err != nil {
		slog.Error("Failed to marshal outbound event", "event", name, "error", err)
		return
	}
	c.Send(frame)
}

// close shuts the send channel exactly once. The write pump drains and then
// closes the socket.
func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.send != nil {
		close(c.send)
		c.send = nil
	}
}

// TrackJoin records room membership on the connection, so a disconnect can
// emit a leave for every room it was still in.
func (c *Conn) TrackJoin(roomID string) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	c.rooms[roomID] = struct{}{}
}

// TrackLeave forgets a room; unknown rooms are a no-op.
func (c *Conn) TrackLeave(roomID string) {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	delete(c.rooms, roomID)
}

// JoinedRooms returns a snapshot of the rooms this connection is in.
func (c *Conn) JoinedRooms() []string {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()

	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// readPump pumps frames from the WebSocket into the registry's event handler.
// It runs until the connection dies, then triggers removal.
func (c *Conn) readPump(r *Registry) {
	defer func() {
		r.Remove(c.id)
		c.sock.Close(websocket.StatusNormalClosure, "Client disconnected")
	}()

	c.sock.SetReadLimit(maxFrameSize)

	for {
		_, frame, err := c.sock.Read(context.Background())
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				slog.Info("WebSocket closed normally by client", "connectionID", c.id)
			} else {
				slog.Debug("WebSocket read ended", "connectionID", c.id, "error", err)
			}
			return
		}
		r.dispatch(c, frame)
	}
}

// writePump pumps frames from the send channel to the WebSocket.
func (c *Conn) writePump() {
	defer func() {
		c.sock.Close(websocket.StatusNormalClosure, "Server-side cleanup")
	}()

	c.mu.RLock()
	send := c.send
	c.mu.RUnlock()

	for frame := range send {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		err := c.sock.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			slog.Debug("WebSocket write error", "connectionID", c.id, "error", err)
			return
		}
	}
}
