package livesync

import "errors"

var (
	// ErrUnknownResource means a watch targeted a resource with no backing entity
	ErrUnknownResource = errors.New("unknown resource")
	// ErrDeliveryFailure means a frame could not be queued or written to a subscriber
	ErrDeliveryFailure = errors.New("delivery failure")
	// ErrSessionClosed is returned for any operation on a CLOSED session
	ErrSessionClosed = errors.New("session closed")
)

// ErrBadRequest marks a well-formed envelope that cannot be honoured in the
// session's current state (e.g. a patch before any watch-request)
var ErrBadRequest = errors.New("bad request")
