package main

import (
	"github.com/PorkStudios/PorkLib-sub015/pkg/protocol"
	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// textPacket is the only packet of the echo protocol.
const textPacket = 1

// newEchoProtocol returns the text protocol spoken by serve and connect.
// Every received text is passed to onText.
func newEchoProtocol(onText protocol.HandlerFunc[string]) *protocol.Protocol {
	p := protocol.New("pnet-echo")
	protocol.MustRegister(p, textPacket, protocol.String(), onText)
	return p
}

// echo sends text back on the channel it arrived on, with the channel's
// reliability.
func echo(s *session.Session, text string, ch wire.ChannelID) {
	if err := s.SendOn(text, ch); err != nil {
		s.Logger().Warn("echo failed", "channel", ch, "error", err)
	}
}
