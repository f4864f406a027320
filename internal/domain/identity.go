package domain

// Identity is the verified identity attached to a connection at admit time.
// All realtime events are stamped with it server-side; identity fields a
// client supplies inside event payloads are ignored.
type Identity struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	UserImage string `json:"userImage,omitempty"`
}

// Valid reports whether the identity carries the minimum fields required to
// join rooms and send messages.
func (i Identity) Valid() bool {
	return i.UserID != "" && i.Username != ""
}
