package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/contesthub/contesthub/internal/domain"
	"github.com/contesthub/contesthub/internal/pubsub"
	"github.com/contesthub/contesthub/internal/rooms"
	"github.com/contesthub/contesthub/internal/ws"
)

const (
	// DefaultTypingTTL is how long a typing entry survives without a
	// refresh. Clients re-emit typing while the user keeps typing and send
	// stop-typing after ~1s of inactivity; the server-side sweep covers
	// clients that disconnect mid-type without sending stop-typing.
	DefaultTypingTTL = 3 * time.Second

	sweepInterval = time.Second
)

// TypingPayload is the wire payload for user-typing and user-stop-typing.
type TypingPayload struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	ContestID string `json:"contestId"`
}

// entry is one user's typing state in one room.
type entry struct {
	username  string
	expiresAt time.Time
}

// Tracker keeps the runtime-only set of users currently typing per room and
// relays typing events to the room, excluding the typer. Nothing here is
// persisted.
type Tracker struct {
	mu     sync.Mutex
	typing map[string]map[string]entry // roomID -> userID -> entry

	rooms  *rooms.Manager
	ttl    time.Duration
	logger *slog.Logger

	sweepTicker *time.Ticker
	stopSweep   chan struct{}
	stopOnce    sync.Once

	// now is swappable in tests.
	now func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTTL overrides the typing-entry TTL.
func WithTTL(d time.Duration) Option {
	return func(t *Tracker) { t.ttl = d }
}

// NewTracker creates a typing tracker that broadcasts through the given room
// manager and starts the expiry sweep.
func NewTracker(roomMgr *rooms.Manager, opts ...Option) *Tracker {
	t := &Tracker{
		typing:      make(map[string]map[string]entry),
		rooms:       roomMgr,
		ttl:         DefaultTypingTTL,
		logger:      slog.Default().With("component", "presence"),
		sweepTicker: time.NewTicker(sweepInterval),
		stopSweep:   make(chan struct{}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	go t.runSweep()
	return t
}

// SetTyping upserts the typing entry for (room, user) and broadcasts a
// user-typing event to the room, excluding the typer's own connection.
func (t *Tracker) SetTyping(roomID string, ident domain.Identity, excludeConnID string) {
	t.mu.Lock()
	byUser, ok := t.typing[roomID]
	if !ok {
		byUser = make(map[string]entry)
		t.typing[roomID] = byUser
	}
	byUser[ident.UserID] = entry{username: ident.Username, expiresAt: t.now().Add(t.ttl)}
	t.mu.Unlock()

	t.broadcast(ws.EventUserTyping, roomID, ident.UserID, ident.Username, excludeConnID)
}

// ClearTyping removes the entry and broadcasts user-stop-typing. It is
// idempotent: clearing a user who is not typing does nothing.
func (t *Tracker) ClearTyping(roomID, userID, excludeConnID string) {
	t.mu.Lock()
	byUser, ok := t.typing[roomID]
	if !ok {
		t.mu.Unlock()
		return
	}
	e, existed := byUser[userID]
	if existed {
		delete(byUser, userID)
		if len(byUser) == 0 {
			delete(t.typing, roomID)
		}
	}
	t.mu.Unlock()

	if existed {
		t.broadcast(ws.EventUserStopTyping, roomID, userID, e.username, excludeConnID)
	}
}

// TypingUsers returns the users currently typing in the room.
func (t *Tracker) TypingUsers(roomID string) []TypingPayload {
	t.mu.Lock()
	defer t.mu.Unlock()

	byUser := t.typing[roomID]
	users := make([]TypingPayload, 0, len(byUser))
	for userID, e := range byUser {
		users = append(users, TypingPayload{UserID: userID, Username: e.username, ContestID: roomID})
	}
	return users
}

// Shutdown stops the expiry sweep.
func (t *Tracker) Shutdown() {
	t.stopOnce.Do(func() {
		close(t.stopSweep)
	})
}

// SubscribeLifecycle clears typing state for connections that disconnect
// without sending stop-typing, broadcasting the stop to each affected room.
func (t *Tracker) SubscribeLifecycle(ctx context.Context, sub pubsub.Subscriber) error {
	return sub.Subscribe(ctx, ws.TopicClientDisconnected, func(ctx context.Context, msg pubsub.Message) error {
		var event ws.DisconnectedEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			t.logger.Error("Failed to unmarshal disconnect event", "error", err)
			return err
		}
		for _, roomID := range event.Rooms {
			t.ClearTyping(roomID, event.UserID, event.ConnectionID)
		}
		return nil
	})
}

func (t *Tracker) runSweep() {
	for {
		select {
		case <-t.sweepTicker.C:
			t.sweepStale()
		case <-t.stopSweep:
			t.sweepTicker.Stop()
			return
		}
	}
}

// sweepStale removes entries past their TTL and broadcasts stop-typing for
// each, so other clients never see a stuck "typing…" indicator.
func (t *Tracker) sweepStale() {
	type stale struct {
		roomID, userID, username string
	}

	now := t.now()
	var expired []stale

	t.mu.Lock()
	for roomID, byUser := range t.typing {
		for userID, e := range byUser {
			if e.expiresAt.Before(now) {
				delete(byUser, userID)
				expired = append(expired, stale{roomID: roomID, userID: userID, username: e.username})
			}
		}
		if len(byUser) == 0 {
			delete(t.typing, roomID)
		}
	}
	t.mu.Unlock()

	for _, s := range expired {
		t.logger.Debug("Expiring stale typing entry", "room", s.roomID, "userID", s.userID)
		t.broadcast(ws.EventUserStopTyping, s.roomID, s.userID, s.username, "")
	}
}

func (t *Tracker) broadcast(event, roomID, userID, username, excludeConnID string) {
	frame, err := ws.MarshalEvent(event, TypingPayload{
		UserID:    userID,
		Username:  username,
		ContestID: roomID,
	})
	if err != nil {
		t.logger.Error("Failed to marshal typing event", "error", err)
		return
	}
	t.rooms.Broadcast(roomID, frame, excludeConnID)
}
