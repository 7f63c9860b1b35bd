package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrInvalidAddress is returned when an invalid peer address is provided.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrNoHandler is returned when no handler is configured.
	ErrNoHandler = errors.New("transport: no handler configured")

	// ErrNoSocket is returned when no socket or listener is provided.
	ErrNoSocket = errors.New("transport: no socket provided")

	// ErrAlreadyStarted is returned when Start is called on a running transport.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrMessageTooLarge is returned when a datagram exceeds the maximum size.
	ErrMessageTooLarge = errors.New("transport: message too large")
)

// MaxDatagramSize is the largest datagram the lab will send or receive.
// Matches the IPv6 minimum MTU so emulated traffic never fragments.
const MaxDatagramSize = 1280
