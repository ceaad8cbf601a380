package channel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// Table is the channel map of one session. The default channel is created
// OPEN and can never be closed through the table.
type Table struct {
	observer Observer
	def      *Channel

	mu       sync.RWMutex
	channels map[wire.ChannelID]*Channel
}

// NewTable creates a table whose default channel uses reliability.
func NewTable(reliability wire.Reliability, observer Observer) *Table {
	def := New(wire.DefaultChannel, reliability, observer)
	def.state = StateOpen
	return &Table{
		observer: observer,
		def:      def,
		channels: map[wire.ChannelID]*Channel{wire.DefaultChannel: def},
	}
}

// Default returns the default channel.
func (t *Table) Default() *Channel {
	return t.def
}

// Get returns the channel with the given id.
func (t *Table) Get(id wire.ChannelID) (*Channel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ch, ok := t.channels[id]
	return ch, ok
}

// Writable returns the channel if it accepts payload traffic. A channel
// that was never opened reports the CLOSED state.
func (t *Table) Writable(id wire.ChannelID) (*Channel, error) {
	ch, ok := t.Get(id)
	if !ok {
		return nil, &IllegalStateError{Channel: id, State: StateClosed, Op: "send"}
	}
	if err := ch.CheckWritable(); err != nil {
		return nil, err
	}
	return ch, nil
}

// lookupOrCreate returns the channel for id, creating a closed one.
func (t *Table) lookupOrCreate(id wire.ChannelID) (*Channel, error) {
	if id == wire.DefaultChannel || id.IsControl() {
		return nil, fmt.Errorf("%w: %s", ErrReservedChannel, id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.channels[id]
	if !ok {
		ch = New(id, wire.Reliable, t.observer)
		t.channels[id] = ch
	}
	return ch, nil
}

// Open begins a locally initiated open and returns the channel together with
// the handshake request for the peer.
func (t *Table) Open(id wire.ChannelID, reliability wire.Reliability) (*Channel, wire.ControlMessage, error) {
	ch, err := t.lookupOrCreate(id)
	if err != nil {
		return nil, wire.ControlMessage{}, err
	}
	msg, err := ch.BeginOpen(reliability)
	if err != nil {
		return nil, wire.ControlMessage{}, err
	}
	return ch, msg, nil
}

// Accept opens a channel requested by the peer and returns the
// acknowledgement for it.
func (t *Table) Accept(id wire.ChannelID, reliability wire.Reliability) (*Channel, wire.ControlMessage, error) {
	ch, err := t.lookupOrCreate(id)
	if err != nil {
		return nil, wire.ControlMessage{}, err
	}
	msg, err := ch.AcceptOpen(reliability)
	if err != nil {
		return nil, wire.ControlMessage{}, err
	}
	return ch, msg, nil
}

// ForceCloseAll closes every channel except the default one and returns
// those that were not already closed.
func (t *Table) ForceCloseAll() []*Channel {
	t.mu.RLock()
	all := make([]*Channel, 0, len(t.channels))
	for id, ch := range t.channels {
		if id != wire.DefaultChannel {
			all = append(all, ch)
		}
	}
	t.mu.RUnlock()

	var closed []*Channel
	for _, ch := range all {
		if ch.ForceClose() != StateClosed {
			closed = append(closed, ch)
		}
	}
	return closed
}

// Len returns the number of tracked channels, including closed ones and the
// default channel.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.channels)
}

// Snapshot returns the state of every tracked channel, ordered by id.
func (t *Table) Snapshot() []Info {
	t.mu.RLock()
	infos := make([]Info, 0, len(t.channels))
	for _, ch := range t.channels {
		infos = append(infos, Info{ID: ch.id, State: ch.State(), Reliability: ch.Reliability()})
	}
	t.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Info is a point-in-time view of a channel.
type Info struct {
	ID          wire.ChannelID
	State       State
	Reliability wire.Reliability
}
