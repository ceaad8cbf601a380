package session

import (
	"errors"
	"fmt"
)

// Session errors.
var (
	// ErrSessionClosed is returned for operations on a closing or closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrClosedByPeer is the close reason when the peer announced a close.
	ErrClosedByPeer = errors.New("session closed by peer")

	// ErrKeepAliveTimeout is raised when too many pings went unanswered.
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")

	// ErrNotEncoded is returned when a message reaches the transport without
	// having been encoded to bytes by a pipeline handler.
	ErrNotEncoded = errors.New("message not encoded")
)

// peerCloseError wraps ErrClosedByPeer with the reason the peer sent.
func peerCloseError(reason string) error {
	if reason == "" {
		return ErrClosedByPeer
	}
	return fmt.Errorf("%w: %s", ErrClosedByPeer, reason)
}
