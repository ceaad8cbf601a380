package session

import (
	"time"

	"github.com/PorkStudios/PorkLib-sub015/pkg/channel"
	"github.com/PorkStudios/PorkLib-sub015/pkg/log"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

func (s *Session) event(layer log.Layer, category log.Category) log.Event {
	ev := log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Layer:     layer,
		Category:  category,
		Transport: s.transport,
	}
	if addr := s.conn.RemoteAddr(); addr != nil {
		ev.RemoteAddr = addr.String()
	}
	return ev
}

func (s *Session) logState(from, to State, reason string) {
	s.logger.Debug("session state", "from", from, "to", to)
	if s.plog == nil {
		return
	}
	ev := s.event(log.LayerSession, log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntitySession,
		OldState: from.String(),
		NewState: to.String(),
		Reason:   reason,
	}
	s.plog.Log(ev)
}

func (s *Session) channelChanged(ch *channel.Channel, from, to channel.State) {
	s.logger.Debug("channel state", "channel", ch.ID(), "from", from, "to", to)
	if s.plog == nil {
		return
	}
	ev := s.event(log.LayerSession, log.CategoryState)
	ev.Channel = log.ChannelRef(ch.ID())
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntityChannel,
		OldState: from.String(),
		NewState: to.String(),
	}
	s.plog.Log(ev)
}

func (s *Session) logControl(msg wire.ControlMessage, dir log.Direction) {
	if s.plog == nil {
		return
	}
	ev := s.event(log.LayerSession, log.CategoryControl)
	ev.Direction = dir
	if msg.Type.IsChannelManagement() {
		ev.Channel = log.ChannelRef(msg.Channel)
	}
	ev.Control = log.NewControlEvent(msg)
	s.plog.Log(ev)
}

func (s *Session) logError(err error, context string) {
	if s.plog == nil {
		return
	}
	ev := s.event(log.LayerSession, log.CategoryError)
	ev.Error = &log.ErrorEvent{
		Layer:   log.LayerSession,
		Message: err.Error(),
		Context: context,
	}
	s.plog.Log(ev)
}
