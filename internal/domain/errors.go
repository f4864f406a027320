package domain

import "errors"

// Sentinel errors for the discussion core. These provide consistent, checkable
// errors for the failure modes the realtime layer distinguishes between.
var (
	// ErrInvalidInput indicates a message body that is empty or exceeds the
	// maximum length. The message is rejected before persistence and is
	// never broadcast.
	ErrInvalidInput = errors.New("invalid message body")

	// ErrStoreUnavailable indicates the durable message store rejected or
	// failed an append. The message is not broadcast so that other clients
	// never see a message that was not durably recorded.
	ErrStoreUnavailable = errors.New("message store unavailable")

	// ErrUnauthenticated indicates an operation from a connection with no
	// verified identity.
	ErrUnauthenticated = errors.New("connection is not authenticated")
)
