package channel_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PorkStudios/PorkLib-sub015/pkg/channel"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

func TestTableDefaultChannel(t *testing.T) {
	tbl := channel.NewTable(wire.ReliableOrdered, nil)

	def := tbl.Default()
	assert.Equal(t, wire.DefaultChannel, def.ID())
	assert.True(t, def.IsOpen())
	assert.Equal(t, wire.ReliableOrdered, def.Reliability())

	ch, err := tbl.Writable(wire.DefaultChannel)
	require.NoError(t, err)
	assert.Same(t, def, ch)

	_, _, err = tbl.Open(wire.DefaultChannel, wire.Reliable)
	assert.ErrorIs(t, err, channel.ErrReservedChannel)
	_, _, err = tbl.Accept(wire.ControlChannel, wire.Reliable)
	assert.ErrorIs(t, err, channel.ErrReservedChannel)

	assert.Empty(t, tbl.ForceCloseAll())
	assert.True(t, def.IsOpen())
}

func TestTableNeverOpened(t *testing.T) {
	tbl := channel.NewTable(wire.Reliable, nil)
	_, err := tbl.Writable(42)
	assert.ErrorIs(t, err, channel.ErrIllegalChannelState)
	assert.Equal(t, 1, tbl.Len())
}

func TestTableOpenCloseMany(t *testing.T) {
	tbl := channel.NewTable(wire.Reliable, nil)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id wire.ChannelID) {
			defer wg.Done()
			ch, _, err := tbl.Open(id, wire.Reliable)
			if !assert.NoError(t, err, fmt.Sprintf("open %d", id)) {
				return
			}
			assert.NoError(t, ch.AckOpen())
			_, err = ch.BeginClose()
			assert.NoError(t, err)
			assert.NoError(t, ch.AckClose())
		}(wire.ChannelID(i))
	}
	wg.Wait()

	for _, info := range tbl.Snapshot() {
		if info.ID == wire.DefaultChannel {
			continue
		}
		assert.Equal(t, channel.StateClosed, info.State, "channel %s", info.ID)
	}
}

func TestTableForceCloseAll(t *testing.T) {
	tbl := channel.NewTable(wire.Reliable, nil)
	a, _, err := tbl.Open(1, wire.Reliable)
	require.NoError(t, err)
	b, _, err := tbl.Open(2, wire.Reliable)
	require.NoError(t, err)
	require.NoError(t, b.AckOpen())
	_, _, err = tbl.Open(3, wire.Reliable)
	require.NoError(t, err)

	closed := tbl.ForceCloseAll()
	assert.Len(t, closed, 3)
	assert.Equal(t, channel.StateClosed, a.State())
	assert.Equal(t, channel.StateClosed, b.State())

	snap := tbl.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, wire.DefaultChannel, snap[0].ID)
	assert.Equal(t, channel.StateOpen, snap[0].State)
}
