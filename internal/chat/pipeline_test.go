package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contesthub/contesthub/internal/domain"
	"github.com/contesthub/contesthub/internal/rooms"
	"github.com/contesthub/contesthub/internal/ws"
)

// mockStore implements MessageStore with programmable behavior and call
// counting.
type mockStore struct {
	mu      sync.Mutex
	appends int
	failing bool
	byKey   map[string]*domain.Message
	recent  []domain.Message
}

func (m *mockStore) Append(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return nil, errors.New("connection refused")
	}

	if msg.ClientKey != "" {
		if existing, ok := m.byKey[msg.ClientKey]; ok {
			return existing, nil
		}
	}

	m.appends++
	stamped := *msg
	stamped.ID = "chat_message:1"
	stamped.Timestamp = time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	if msg.ClientKey != "" {
		if m.byKey == nil {
			m.byKey = make(map[string]*domain.Message)
		}
		m.byKey[msg.ClientKey] = &stamped
	}
	return &stamped, nil
}

func (m *mockStore) ListRecent(ctx context.Context, contestID string, limit int, before time.Time) ([]domain.Message, error) {
	if m.failing {
		return nil, errors.New("connection refused")
	}
	return m.recent, nil
}

func (m *mockStore) appendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

// recordingBroadcaster captures every fan-out.
type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

type broadcastCall struct {
	roomID  string
	payload []byte
	exclude string
}

func (r *recordingBroadcaster) Broadcast(roomID string, payload []byte, excludeConnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, broadcastCall{roomID: roomID, payload: payload, exclude: excludeConnID})
}

func (r *recordingBroadcaster) broadcasts() []broadcastCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]broadcastCall, len(r.calls))
	copy(out, r.calls)
	return out
}

var testIdentity = domain.Identity{UserID: "user-1", Username: "alice", UserImage: "https://img/alice.png"}

func TestPipeline_SendPersistsThenBroadcasts(t *testing.T) {
	store := &mockStore{}
	broadcaster := &recordingBroadcaster{}
	p := NewPipeline(store, broadcaster)

	persisted, err := p.Send(context.Background(), "conn-sender", testIdentity, "contest-1", "anyone solved B?", "")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "chat_message:1", persisted.ID)
	assert.False(t, persisted.Timestamp.IsZero())
	assert.Equal(t, 1, store.appendCount())

	calls := broadcaster.broadcasts()
	require.Len(t, calls, 1)
	assert.Equal(t, "contest-1", calls[0].roomID)
	assert.Equal(t, "conn-sender", calls[0].exclude)

	var ev ws.Event
	require.NoError(t, json.Unmarshal(calls[0].payload, &ev))
	assert.Equal(t, ws.EventNewMessage, ev.Name)

	var msg MessageEvent
	require.NoError(t, json.Unmarshal(ev.Payload, &msg))
	assert.Equal(t, "chat_message:1", msg.ID)
	assert.Equal(t, "anyone solved B?", msg.Message)
	assert.Equal(t, "alice", msg.Username)
}

func TestPipeline_SendRejectsInvalidInput(t *testing.T) {
	store := &mockStore{}
	broadcaster := &recordingBroadcaster{}
	p := NewPipeline(store, broadcaster)

	cases := map[string]struct {
		contestID string
		body      string
	}{
		"empty body":      {contestID: "contest-1", body: ""},
		"whitespace body": {contestID: "contest-1", body: "   "},
		"oversized body":  {contestID: "contest-1", body: strings.Repeat("a", domain.MaxMessageLen+1)},
		"missing room":    {contestID: "", body: "hello"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Send(context.Background(), "conn-1", testIdentity, tc.contestID, tc.body, "")
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	// Nothing was persisted or broadcast.
	assert.Equal(t, 0, store.appendCount())
	assert.Empty(t, broadcaster.broadcasts())
}

func TestPipeline_SendRequiresIdentity(t *testing.T) {
	store := &mockStore{}
	broadcaster := &recordingBroadcaster{}
	p := NewPipeline(store, broadcaster)

	_, err := p.Send(context.Background(), "conn-1", domain.Identity{}, "contest-1", "hello", "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Equal(t, 0, store.appendCount())
	assert.Empty(t, broadcaster.broadcasts())
}

func TestPipeline_StoreFailureSuppressesBroadcast(t *testing.T) {
	store := &mockStore{failing: true}
	broadcaster := &recordingBroadcaster{}
	p := NewPipeline(store, broadcaster)

	_, err := p.Send(context.Background(), "conn-1", testIdentity, "contest-1", "hello", "")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Empty(t, broadcaster.broadcasts(), "a message that failed to persist must never be delivered")
}

func TestPipeline_SendIsIdempotentPerClientKey(t *testing.T) {
	store := &mockStore{}
	broadcaster := &recordingBroadcaster{}
	p := NewPipeline(store, broadcaster)

	first, err := p.Send(context.Background(), "conn-1", testIdentity, "contest-1", "hello", "key-1")
	require.NoError(t, err)

	second, err := p.Send(context.Background(), "conn-1", testIdentity, "contest-1", "hello", "key-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.appendCount(), "a retried send must not create a second row")
}

// roomMember implements rooms.Member, recording delivered frames.
type roomMember struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func (m *roomMember) ID() string { return m.id }

func (m *roomMember) Send(payload []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, payload)
	return true
}

func (m *roomMember) received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

func TestPipeline_RoomFanOut(t *testing.T) {
	// Three members in one room; the sender gets nothing, the other two get
	// exactly one new-message each, and the store holds one new row.
	store := &mockStore{}
	roomMgr := rooms.NewManager()
	p := NewPipeline(store, roomMgr)

	a := &roomMember{id: "conn-a"}
	b := &roomMember{id: "conn-b"}
	c := &roomMember{id: "conn-c"}
	roomMgr.Join("c123", a)
	roomMgr.Join("c123", b)
	roomMgr.Join("c123", c)

	_, err := p.Send(context.Background(), "conn-a", testIdentity, "c123", "hello", "")
	require.NoError(t, err)

	assert.Empty(t, a.received())
	assert.Equal(t, 1, store.appendCount())

	for _, member := range []*roomMember{b, c} {
		frames := member.received()
		require.Len(t, frames, 1)

		var ev ws.Event
		require.NoError(t, json.Unmarshal(frames[0], &ev))
		assert.Equal(t, ws.EventNewMessage, ev.Name)

		var msg MessageEvent
		require.NoError(t, json.Unmarshal(ev.Payload, &msg))
		assert.Equal(t, "hello", msg.Message)
		assert.Equal(t, testIdentity.UserID, msg.UserID)
	}
}

func TestPipeline_HistoryIsChronological(t *testing.T) {
	// The store returns newest first; History flips it.
	store := &mockStore{recent: []domain.Message{
		{ID: "chat_message:3", Body: "third"},
		{ID: "chat_message:2", Body: "second"},
		{ID: "chat_message:1", Body: "first"},
	}}
	p := NewPipeline(store, &recordingBroadcaster{})

	messages, err := p.History(context.Background(), "contest-1", 50, time.Time{})
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].Body)
	assert.Equal(t, "third", messages[2].Body)
}

func TestPipeline_HistoryStoreFailure(t *testing.T) {
	p := NewPipeline(&mockStore{failing: true}, &recordingBroadcaster{})
	_, err := p.History(context.Background(), "contest-1", 50, time.Time{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
