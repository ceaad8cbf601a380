package channel_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PorkStudios/PorkLib-sub015/pkg/channel"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

type transitionRecorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *transitionRecorder) observe(ch *channel.Channel, from, to channel.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, from.String()+"->"+to.String())
}

func TestChannelLifecycle(t *testing.T) {
	rec := &transitionRecorder{}
	ch := channel.New(7, wire.Reliable, rec.observe)

	open, err := ch.BeginOpen(wire.ReliableOrdered)
	require.NoError(t, err)
	assert.Equal(t, wire.ControlChannelOpen, open.Type)
	assert.Equal(t, wire.ChannelID(7), open.Channel)
	assert.Equal(t, wire.ReliableOrdered, open.Reliability)
	assert.Equal(t, channel.StateOpening, ch.State())

	require.NoError(t, ch.AckOpen())
	assert.True(t, ch.IsOpen())
	assert.Equal(t, wire.ReliableOrdered, ch.Reliability())

	closeMsg, err := ch.BeginClose()
	require.NoError(t, err)
	assert.Equal(t, wire.ControlChannelClose, closeMsg.Type)
	require.NoError(t, ch.AckClose())
	assert.Equal(t, channel.StateClosed, ch.State())

	assert.Equal(t, []string{
		"CLOSED->OPENING",
		"OPENING->OPEN",
		"OPEN->CLOSING",
		"CLOSING->CLOSED",
	}, rec.steps)
}

func TestChannelRejectsSkippedTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(ch *channel.Channel)
		op    func(ch *channel.Channel) error
	}{
		{
			name: "ack open while closed",
			op:   func(ch *channel.Channel) error { return ch.AckOpen() },
		},
		{
			name: "close while closed",
			op: func(ch *channel.Channel) error {
				_, err := ch.BeginClose()
				return err
			},
		},
		{
			name:  "close while opening",
			setup: func(ch *channel.Channel) { _, _ = ch.BeginOpen(wire.Reliable) },
			op: func(ch *channel.Channel) error {
				_, err := ch.BeginClose()
				return err
			},
		},
		{
			name: "open twice",
			setup: func(ch *channel.Channel) {
				_, _ = ch.BeginOpen(wire.Reliable)
				_ = ch.AckOpen()
			},
			op: func(ch *channel.Channel) error {
				_, err := ch.BeginOpen(wire.Reliable)
				return err
			},
		},
		{
			name: "ack close while open",
			setup: func(ch *channel.Channel) {
				_, _ = ch.BeginOpen(wire.Reliable)
				_ = ch.AckOpen()
			},
			op: func(ch *channel.Channel) error { return ch.AckClose() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := channel.New(3, wire.Reliable, nil)
			if tt.setup != nil {
				tt.setup(ch)
			}
			err := tt.op(ch)
			require.Error(t, err)
			assert.ErrorIs(t, err, channel.ErrIllegalChannelState)

			var ise *channel.IllegalStateError
			require.True(t, errors.As(err, &ise))
			assert.Equal(t, wire.ChannelID(3), ise.Channel)
		})
	}
}

func TestChannelAcceptOpenAndClose(t *testing.T) {
	rec := &transitionRecorder{}
	ch := channel.New(9, wire.Reliable, rec.observe)

	ack, err := ch.AcceptOpen(wire.Unreliable)
	require.NoError(t, err)
	assert.Equal(t, wire.ControlChannelOpenAck, ack.Type)
	assert.True(t, ch.Remote())
	assert.True(t, ch.IsOpen())

	ack, err = ch.AcceptClose()
	require.NoError(t, err)
	assert.Equal(t, wire.ControlChannelCloseAck, ack.Type)
	assert.Equal(t, channel.StateClosed, ch.State())

	assert.Equal(t, []string{
		"CLOSED->OPENING",
		"OPENING->OPEN",
		"OPEN->CLOSING",
		"CLOSING->CLOSED",
	}, rec.steps)

	_, err = ch.AcceptClose()
	assert.ErrorIs(t, err, channel.ErrIllegalChannelState)
}

func TestChannelSimultaneousClose(t *testing.T) {
	ch := channel.New(4, wire.Reliable, nil)
	_, _ = ch.AcceptOpen(wire.Reliable)
	_, err := ch.BeginClose()
	require.NoError(t, err)

	_, err = ch.AcceptClose()
	require.NoError(t, err)
	assert.Equal(t, channel.StateClosed, ch.State())
}

func TestChannelForceClose(t *testing.T) {
	ch := channel.New(5, wire.Reliable, nil)
	_, err := ch.BeginOpen(wire.Reliable)
	require.NoError(t, err)

	assert.Equal(t, channel.StateOpening, ch.ForceClose())
	assert.Equal(t, channel.StateClosed, ch.State())
	assert.Equal(t, channel.StateClosed, ch.ForceClose())

	// A force-closed channel may be opened again.
	_, err = ch.BeginOpen(wire.Reliable)
	assert.NoError(t, err)
}

func TestChannelForceCloseFromOpenPassesClosing(t *testing.T) {
	rec := &transitionRecorder{}
	ch := channel.New(8, wire.Reliable, rec.observe)
	_, err := ch.AcceptOpen(wire.Reliable)
	require.NoError(t, err)

	assert.Equal(t, channel.StateOpen, ch.ForceClose())
	assert.Equal(t, channel.StateClosed, ch.State())
	assert.Equal(t, []string{
		"CLOSED->OPENING",
		"OPENING->OPEN",
		"OPEN->CLOSING",
		"CLOSING->CLOSED",
	}, rec.steps)
}

func TestChannelForceCloseFromTransientStates(t *testing.T) {
	rec := &transitionRecorder{}
	ch := channel.New(9, wire.Reliable, rec.observe)
	_, err := ch.BeginOpen(wire.Reliable)
	require.NoError(t, err)
	ch.ForceClose()

	_, err = ch.AcceptOpen(wire.Reliable)
	require.NoError(t, err)
	_, err = ch.BeginClose()
	require.NoError(t, err)
	ch.ForceClose()

	assert.Equal(t, []string{
		"CLOSED->OPENING",
		"OPENING->CLOSED",
		"CLOSED->OPENING",
		"OPENING->OPEN",
		"OPEN->CLOSING",
		"CLOSING->CLOSED",
	}, rec.steps)
}

func TestChannelCheckWritable(t *testing.T) {
	ch := channel.New(6, wire.Reliable, nil)
	err := ch.CheckWritable()
	var ise *channel.IllegalStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, channel.StateClosed, ise.State)
	assert.Equal(t, "send", ise.Op)
	assert.Equal(t, "channel 6: cannot send in state CLOSED", err.Error())
}

func TestRejectedError(t *testing.T) {
	err := &channel.RejectedError{Channel: 2, Reason: "in use"}
	assert.ErrorIs(t, err, channel.ErrHandshakeRejected)
	assert.Contains(t, err.Error(), "in use")
}
