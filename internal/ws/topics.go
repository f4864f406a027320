package ws

// Bus topics published by the connection registry. The room manager and the
// presence tracker subscribe to these to clean up state after a disconnect.
const (
	// TopicClientConnected is published when a connection is admitted.
	TopicClientConnected = "ws.client.connected"
	// TopicClientDisconnected is published when a connection is removed.
	TopicClientDisconnected = "ws.client.disconnected"
)

// ConnectedEvent is the payload for TopicClientConnected.
type ConnectedEvent struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	Username     string `json:"username"`
}

// DisconnectedEvent is the payload for TopicClientDisconnected. Rooms carries
// every room the connection was still joined to, so subscribers can emit a
// leave for each.
type DisconnectedEvent struct {
	ConnectionID string   `json:"connectionId"`
	UserID       string   `json:"userId"`
	Username     string   `json:"username"`
	Rooms        []string `json:"rooms,omitempty"`
}
