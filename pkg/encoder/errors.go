package encoder

import "errors"

// Encoder RPC errors.
var (
	ErrNoModel        = errors.New("encoder: no device model configured")
	ErrAlreadyStarted = errors.New("encoder: already started")
	ErrSessionClosed  = errors.New("encoder: session closed")
	ErrUnknownRequest = errors.New("encoder: unknown request type")
)

// RPCVersion is the protocol version announced in the hello envelope and
// accepted from identify.
const RPCVersion = 1

// AppVersion is the emulated encoder software version.
const AppVersion = "31.2.0"

// Request status codes carried in requestResponse envelopes.
const (
	// StatusSuccess indicates the request executed.
	StatusSuccess = 100

	// StatusFailure indicates the request was understood but failed.
	StatusFailure = 400
)
