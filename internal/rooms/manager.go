package rooms

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/contesthub/contesthub/internal/pubsub"
	"github.com/contesthub/contesthub/internal/ws"
)

// Member is the view of a connection the room manager needs. Send must not
// block; it returns false when the member is gone or stuck, which the
// manager treats as a dead connection.
type Member interface {
	ID() string
	Send(payload []byte) bool
}

// room holds one contest's member set. The per-room mutex is held for the
// duration of a broadcast's enqueue loop, which is what gives broadcasts
// their FIFO order within a room.
type room struct {
	mu      sync.Mutex
	members map[string]Member
	// evicted marks a room object that has been removed from the manager's
	// index. A join that fetched the pointer before the eviction must not
	// insert into it, or the member would be invisible to broadcasts.
	evicted bool
}

// add inserts the member unless the room has been evicted from the index.
func (r *room) add(member Member) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.evicted {
		return 0, false
	}
	r.members[member.ID()] = member
	return len(r.members), true
}

// Manager maps contest identifiers to the set of live connections joined to
// each. It is a runtime index only; rooms are created lazily on first join
// and evicted when their membership drops to zero.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*room

	onEvict func(connID string)
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithEvict sets the callback invoked when a broadcast finds a dead member.
// The registry's Remove is the usual target, so the dead connection gets a
// full cleanup rather than lingering in other rooms.
func WithEvict(fn func(connID string)) Option {
	return func(m *Manager) { m.onEvict = fn }
}

// NewManager creates an empty room index.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		rooms:  make(map[string]*room),
		logger: slog.Default().With("component", "rooms"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Join adds the member to the room, creating the room if needed. Re-joining
// is a no-op for membership and never errors. A concurrent Leave can evict
// the room between the index lookup and the insert; the insert detects the
// evicted object and retries against the index.
func (m *Manager) Join(roomID string, member Member) {
	for {
		m.mu.Lock()
		r, ok := m.rooms[roomID]
		if !ok {
			r = &room{members: make(map[string]Member)}
			m.rooms[roomID] = r
		}
		m.mu.Unlock()

		count, ok := r.add(member)
		if !ok {
			continue
		}

		m.logger.Info("Member joined room", "room", roomID, "connectionID", member.ID(), "members", count)
		return
	}
}

// Leave removes the connection from the room. Leaving a room you are not a
// member of is a no-op. The room entry is evicted once empty.
func (m *Manager) Leave(roomID, connID string) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	m.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	_, wasMember := r.members[connID]
	delete(r.members, connID)
	empty := len(r.members) == 0
	count := len(r.members)
	r.mu.Unlock()

	if empty {
		m.mu.Lock()
		// Re-check under the index lock; a concurrent join may have raced us.
		r.mu.Lock()
		if len(r.members) == 0 && m.rooms[roomID] == r {
			r.evicted = true
			delete(m.rooms, roomID)
		}
		r.mu.Unlock()
		m.mu.Unlock()
	}

	if wasMember {
		m.logger.Info("Member left room", "room", roomID, "connectionID", connID, "members", count)
	}
}

// MemberCount returns the current member count for the room; zero for rooms
// that don't exist.
func (m *Manager) MemberCount(roomID string) int {
	m.mu.RLock()
	r, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Broadcast delivers the payload to every current member of the room except
// excludeConnID. Delivery is best-effort per member: a dead or stuck member
// is dropped from the room (and reported through the evict callback) without
// affecting delivery to the others. Broadcasts to the same room are FIFO in
// the order Broadcast is called.
func (m *Manager) Broadcast(roomID string, payload []byte, excludeConnID string) {
	m.mu.RLock()
	r, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	var dead []string

	r.mu.Lock()
	for id, member := range r.members {
		if id == excludeConnID {
			continue
		}
		if !member.Send(payload) {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		delete(r.members, id)
	}
	r.mu.Unlock()

	for _, id := range dead {
		m.logger.Warn("Dropping dead member during broadcast", "room", roomID, "connectionID", id)
		if m.onEvict != nil {
			m.onEvict(id)
		}
	}
}

// RoomCount returns the number of live rooms, for introspection.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// SubscribeLifecycle wires the manager to the connection registry's
// disconnect events: every room the connection still belonged to gets a
// leave, mirroring an explicit leave-contest from the client.
func (m *Manager) SubscribeLifecycle(ctx context.Context, sub pubsub.Subscriber) error {
	return sub.Subscribe(ctx, ws.TopicClientDisconnected, func(ctx context.Context, msg pubsub.Message) error {
		var event ws.DisconnectedEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			m.logger.Error("Failed to unmarshal disconnect event", "error", err)
			return err
		}
		for _, roomID := range event.Rooms {
			m.Leave(roomID, event.ConnectionID)
		}
		return nil
	})
}
