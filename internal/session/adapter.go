// Package session provides a client-side adapter for the realtime discussion
// service. It owns the websocket lifecycle (dial, heartbeat, reconnect with
// exponential backoff), re-joins rooms after a reconnect, resyncs history
// through the REST API, and reconciles optimistic sends against server acks.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/contesthub/contesthub/internal/chat"
	"github.com/contesthub/contesthub/internal/domain"
	"github.com/contesthub/contesthub/internal/presence"
	"github.com/contesthub/contesthub/internal/ws"
)

// State describes the connection lifecycle as observed by the client.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

const (
	typingDebounce = 1 * time.Second
	pingInterval   = 30 * time.Second
	baseDelay      = 500 * time.Millisecond
	maxDelay       = 30 * time.Second
	resyncLimit    = 50
)

// Config holds the endpoints and credentials for a client session.
type Config struct {
	// WSURL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	WSURL string
	// APIURL is the REST base, e.g. http://localhost:8080.
	APIURL string
	// Token is the signed identity token presented at the handshake.
	Token string

	HTTPClient *http.Client
}

// Callbacks are invoked from the read loop; handlers must not block.
type Callbacks struct {
	OnState      func(State)
	OnMessage    func(chat.MessageEvent)
	OnAck        func(chat.MessageEvent)
	OnTyping     func(presence.TypingPayload)
	OnStopTyping func(presence.TypingPayload)
	OnRoomCount  func(chat.RoomCountPayload)
	OnError      func(ws.ErrorPayload)
	// OnResync delivers the recent history of a room after a reconnect, in
	// chronological order. The client should replace its local view with it.
	OnResync func(contestID string, history []chat.MessageEvent)
}

// Client is a resilient session against the discussion server. All methods
// are safe for concurrent use.
type Client struct {
	cfg       Config
	callbacks Callbacks
	http      *http.Client
	logger    *slog.Logger

	mu       sync.RWMutex
	sock     *websocket.Conn
	writeMu  sync.Mutex
	state    State
	socketID string
	rooms    map[string]struct{}
	pending  map[string]chat.MessageEvent
	typing   map[string]map[string]string

	timerMu      sync.Mutex
	typingTimers map[string]*time.Timer
	typingSent   map[string]time.Time

	cancel   context.CancelFunc
	stopOnce sync.Once

	// now is swappable in tests.
	now func() time.Time
}

// New builds a client session. Connect must be called to start it.
func New(cfg Config, callbacks Callbacks) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		cfg:          cfg,
		callbacks:    callbacks,
		http:         httpClient,
		logger:       slog.Default().With("component", "session"),
		state:        StateDisconnected,
		rooms:        make(map[string]struct{}),
		pending:      make(map[string]chat.MessageEvent),
		typing:       make(map[string]map[string]string),
		typingTimers: make(map[string]*time.Timer),
		typingSent:   make(map[string]time.Time),
		now:          time.Now,
	}
}

// Connect starts the session loop. It returns after the first dial attempt
// resolves; reconnects afterwards happen in the background until Close is
// called or ctx is canceled.
func (c *Client) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.dial(runCtx); err != nil {
		cancel()
		return err
	}

	go c.run(runCtx)
	return nil
}

// Close tears the session down and stops reconnecting.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		sock := c.sock
		c.sock = nil
		c.mu.Unlock()

		if sock != nil {
			sock.Close(websocket.StatusNormalClosure, "")
		}
		c.setState(StateDisconnected)
	})
}

// Connected reports whether the socket is currently up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateConnected
}

// SocketID returns the server-assigned connection id, empty until connected.
func (c *Client) SocketID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.socketID
}

// TypingUsers returns the usernames currently typing in a room, keyed by
// user id, as observed from user-typing and user-stop-typing events.
func (c *Client) TypingUsers(contestID string) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.typing[contestID]))
	for id, name := range c.typing[contestID] {
		out[id] = name
	}
	return out
}

// Join subscribes to a contest room. The membership is remembered so it can
// be re-established after a reconnect.
func (c *Client) Join(ctx context.Context, contestID string) error {
	c.mu.Lock()
	c.rooms[contestID] = struct{}{}
	c.mu.Unlock()
	return c.send(ctx, ws.EventJoinContest, chat.JoinPayload{ContestID: contestID})
}

// Leave unsubscribes from a contest room.
func (c *Client) Leave(ctx context.Context, contestID string) error {
	c.mu.Lock()
	delete(c.rooms, contestID)
	delete(c.typing, contestID)
	c.mu.Unlock()
	c.cancelTypingTimer(contestID)
	return c.send(ctx, ws.EventLeaveContest, chat.JoinPayload{ContestID: contestID})
}

// Send validates and submits a message. It returns the idempotency key the
// message was sent under; the same key comes back on the message-ack, and a
// retry after a dropped connection reuses it so the server deduplicates.
func (c *Client) Send(ctx context.Context, contestID, body string) (string, error) {
	if err := domain.ValidateBody(body); err != nil {
		return "", err
	}
	key := uuid.NewString()
	return key, c.Resend(ctx, contestID, body, key)
}

// Resend submits a message under an existing idempotency key.
func (c *Client) Resend(ctx context.Context, contestID, body, key string) error {
	c.mu.Lock()
	c.pending[key] = chat.MessageEvent{ContestID: contestID, Message: body, ClientKey: key}
	c.mu.Unlock()

	c.cancelTypingTimer(contestID)
	return c.send(ctx, ws.EventSendMessage, chat.SendPayload{
		ContestID: contestID,
		Message:   body,
		ClientKey: key,
	})
}

// Pending returns the messages sent but not yet acknowledged.
func (c *Client) Pending() []chat.MessageEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]chat.MessageEvent, 0, len(c.pending))
	for _, msg := range c.pending {
		out = append(out, msg)
	}
	return out
}

// Typing signals that the user is composing. Every call resets the auto-stop
// timer; the typing event itself is re-sent at most once per debounce
// interval, which keeps the server-side TTL refreshed for as long as the
// user keeps typing without flooding the socket on every keystroke.
func (c *Client) Typing(ctx context.Context, contestID string) error {
	c.timerMu.Lock()
	timer, active := c.typingTimers[contestID]
	if active {
		timer.Reset(typingDebounce)
		if c.now().Sub(c.typingSent[contestID]) < typingDebounce {
			c.timerMu.Unlock()
			return nil
		}
	} else {
		c.typingTimers[contestID] = time.AfterFunc(typingDebounce, func() {
			c.StopTyping(context.Background(), contestID)
		})
	}
	c.typingSent[contestID] = c.now()
	c.timerMu.Unlock()

	return c.send(ctx, ws.EventTyping, chat.TypingSignal{ContestID: contestID})
}

// StopTyping signals the end of composition immediately.
func (c *Client) StopTyping(ctx context.Context, contestID string) error {
	c.cancelTypingTimer(contestID)
	return c.send(ctx, ws.EventStopTyping, chat.TypingSignal{ContestID: contestID})
}

func (c *Client) cancelTypingTimer(contestID string) {
	c.timerMu.Lock()
	if timer, ok := c.typingTimers[contestID]; ok {
		timer.Stop()
		delete(c.typingTimers, contestID)
	}
	delete(c.typingSent, contestID)
	c.timerMu.Unlock()
}

func (c *Client) send(ctx context.Context, name string, payload any) error {
	c.mu.RLock()
	sock := c.sock
	c.mu.RUnlock()
	if sock == nil {
		return fmt.Errorf("session not connected")
	}

	frame, err := ws.MarshalEvent(name, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return sock.Write(writeCtx, websocket.MessageText, frame)
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed && c.callbacks.OnState != nil {
		c.callbacks.OnState(state)
	}
}

func (c *Client) dial(ctx context.Context) error {
	c.setState(StateConnecting)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)

	sock, _, err := websocket.Dial(ctx, c.cfg.WSURL, &websocket.DialOptions{
		HTTPClient: c.http,
		HTTPHeader: header,
	})
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("failed to dial %s: %w", c.cfg.WSURL, err)
	}
	sock.SetReadLimit(32768)

	c.mu.Lock()
	c.sock = sock
	c.mu.Unlock()
	c.setState(StateConnected)
	return nil
}

// run owns the read loop and the reconnect cycle. After each successful dial
// it re-joins every remembered room and resyncs their history, then reads
// frames until the socket dies.
func (c *Client) run(ctx context.Context) {
	pinger := time.NewTicker(pingInterval)
	defer pinger.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pinger.C:
				if c.Connected() {
					c.send(ctx, ws.EventPing, map[string]int64{"timestamp": time.Now().UnixMilli()})
				}
			}
		}
	}()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		c.rejoin(ctx)
		err := c.readLoop(ctx)
		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("Connection lost, reconnecting", "error", err)

		for {
			delay := backoffDelay(attempt)
			attempt++
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			if err := c.dial(ctx); err != nil {
				c.logger.Warn("Reconnect attempt failed", "attempt", attempt, "error", err)
				continue
			}
			attempt = 0
			break
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.RLock()
	sock := c.sock
	c.mu.RUnlock()
	if sock == nil {
		return fmt.Errorf("session not connected")
	}

	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			return err
		}

		var event ws.Event
		if err := json.Unmarshal(data, &event); err != nil {
			c.logger.Warn("Dropping malformed frame", "error", err)
			continue
		}
		c.handleEvent(event)
	}
}

// rejoin replays join-contest for every remembered room and resyncs each
// room's history over REST, so a reconnecting client misses nothing that was
// broadcast while it was away.
func (c *Client) rejoin(ctx context.Context) {
	c.mu.RLock()
	roomIDs := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		roomIDs = append(roomIDs, id)
	}
	c.mu.RUnlock()

	for _, contestID := range roomIDs {
		if err := c.send(ctx, ws.EventJoinContest, chat.JoinPayload{ContestID: contestID}); err != nil {
			c.logger.Warn("Failed to rejoin room", "contestId", contestID, "error", err)
			continue
		}
		if c.callbacks.OnResync == nil {
			continue
		}
		history, err := c.FetchHistory(ctx, contestID, resyncLimit)
		if err != nil {
			c.logger.Warn("History resync failed", "contestId", contestID, "error", err)
			continue
		}
		c.callbacks.OnResync(contestID, history)
	}
}

// FetchHistory retrieves recent messages for a room over the REST API, in
// chronological order.
func (c *Client) FetchHistory(ctx context.Context, contestID string, limit int) ([]chat.MessageEvent, error) {
	url := fmt.Sprintf("%s/api/contests/%s/chat?limit=%d", c.cfg.APIURL, contestID, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request returned status %d", res.StatusCode)
	}

	var body struct {
		Success bool                `json:"success"`
		Data    []chat.MessageEvent `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode history response: %w", err)
	}
	return body.Data, nil
}

func (c *Client) handleEvent(event ws.Event) {
	switch event.Name {
	case ws.EventConnectionSuccess:
		var payload struct {
			SocketID string `json:"socketId"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err == nil {
			c.mu.Lock()
			c.socketID = payload.SocketID
			c.mu.Unlock()
		}

	case ws.EventNewMessage:
		var msg chat.MessageEvent
		if err := json.Unmarshal(event.Payload, &msg); err != nil {
			return
		}
		if c.callbacks.OnMessage != nil {
			c.callbacks.OnMessage(msg)
		}

	case ws.EventMessageAck:
		var msg chat.MessageEvent
		if err := json.Unmarshal(event.Payload, &msg); err != nil {
			return
		}
		c.mu.Lock()
		delete(c.pending, msg.ClientKey)
		c.mu.Unlock()
		if c.callbacks.OnAck != nil {
			c.callbacks.OnAck(msg)
		}

	case ws.EventUserTyping:
		var payload presence.TypingPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return
		}
		c.mu.Lock()
		if c.typing[payload.ContestID] == nil {
			c.typing[payload.ContestID] = make(map[string]string)
		}
		c.typing[payload.ContestID][payload.UserID] = payload.Username
		c.mu.Unlock()
		if c.callbacks.OnTyping != nil {
			c.callbacks.OnTyping(payload)
		}

	case ws.EventUserStopTyping:
		var payload presence.TypingPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return
		}
		c.mu.Lock()
		delete(c.typing[payload.ContestID], payload.UserID)
		c.mu.Unlock()
		if c.callbacks.OnStopTyping != nil {
			c.callbacks.OnStopTyping(payload)
		}

	case ws.EventRoomCount:
		var payload chat.RoomCountPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return
		}
		if c.callbacks.OnRoomCount != nil {
			c.callbacks.OnRoomCount(payload)
		}

	case ws.EventError:
		var payload ws.ErrorPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return
		}
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(payload)
		}

	case ws.EventPong:
		// Heartbeat answered; nothing to track yet.

	default:
		c.logger.Debug("Ignoring unknown event", "event", event.Name)
	}
}

// backoffDelay mirrors the server-side retry policy: exponential growth from
// baseDelay, capped at maxDelay, with up to 25% jitter.
func backoffDelay(attempt int) time.Duration {
	delay := float64(baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	delay += rand.Float64() * delay * 0.25
	return time.Duration(delay)
}
