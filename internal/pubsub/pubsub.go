package pubsub

import "context"

// Message is the structure passed between components on the internal bus.
// The realtime layer publishes connection lifecycle events on it; the room
// manager and presence tracker consume them to clean up after disconnects.
type Message struct {
	// Topic identifies the channel the message belongs to (e.g., "ws.client.disconnected").
	Topic string
	// UserID identifies the user the event concerns, when applicable.
	UserID string
	// Payload contains the raw event data as JSON.
	Payload []byte
	// Metadata can contain arbitrary key-value pairs for context.
	Metadata map[string]string
}

// Handler defines the function signature for processing a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines the contract for sending messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber defines the contract for receiving messages from the bus.
type Subscriber interface {
	// Subscribe registers the handler for the topic and returns once the
	// subscription is active; messages are processed on a background goroutine.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
