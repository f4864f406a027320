package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillBridge_RoundTrip(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan Message, 1)
	require.NoError(t, bridge.Subscribe(ctx, "test.topic", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	sent := Message{
		Topic:    "test.topic",
		UserID:   "user-1",
		Payload:  []byte(`{"hello":"world"}`),
		Metadata: map[string]string{"origin": "test"},
	}
	require.NoError(t, bridge.Publish(ctx, sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.Topic, got.Topic)
		assert.Equal(t, sent.UserID, got.UserID)
		assert.Equal(t, sent.Payload, got.Payload)
		assert.Equal(t, "test", got.Metadata["origin"])
	case <-ctx.Done():
		t.Fatal("message never delivered")
	}
}

func TestWatermillBridge_FanOutToAllSubscribers(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		require.NoError(t, bridge.Subscribe(ctx, "fanout.topic", func(ctx context.Context, msg Message) error {
			wg.Done()
			return nil
		}))
	}

	require.NoError(t, bridge.Publish(ctx, Message{Topic: "fanout.topic", Payload: []byte("x")}))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("not every subscriber received the message")
	}
}

func TestWatermillBridge_HandlerErrorDoesNotStopLoop(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	delivered := make(chan []byte, 2)
	calls := 0
	require.NoError(t, bridge.Subscribe(ctx, "flaky.topic", func(ctx context.Context, msg Message) error {
		calls++
		if calls == 1 {
			return errors.New("transient failure")
		}
		delivered <- msg.Payload
		return nil
	}))

	require.NoError(t, bridge.Publish(ctx, Message{Topic: "flaky.topic", Payload: []byte("first")}))

	// The nacked message is redelivered; the loop keeps running either way.
	select {
	case payload := <-delivered:
		assert.Equal(t, []byte("first"), payload)
	case <-ctx.Done():
		t.Fatal("handler loop stopped after an error")
	}
}
