package channel

import (
	"errors"
	"fmt"

	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// Channel errors.
var (
	ErrIllegalChannelState = errors.New("illegal channel state")
	ErrReservedChannel     = errors.New("reserved channel id")
	ErrHandshakeRejected   = errors.New("channel handshake rejected")
	ErrHandshakeTimeout    = errors.New("channel handshake timeout")
)

// IllegalStateError reports an operation attempted on a channel whose
// state does not permit it.
type IllegalStateError struct {
	Channel wire.ChannelID
	State   State
	Op      string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("channel %s: cannot %s in state %s", e.Channel, e.Op, e.State)
}

// Is matches ErrIllegalChannelState.
func (e *IllegalStateError) Is(target error) bool {
	return target == ErrIllegalChannelState
}

// RejectedError carries the reason a peer gave for refusing a channel.
type RejectedError struct {
	Channel wire.ChannelID
	Reason  string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("channel %s: open rejected by peer", e.Channel)
	}
	return fmt.Sprintf("channel %s: open rejected by peer: %s", e.Channel, e.Reason)
}

// Is matches ErrHandshakeRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrHandshakeRejected
}
