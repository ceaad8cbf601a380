package protocol

import (
	"github.com/PorkStudios/PorkLib-sub015/pkg/pipeline"
	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// Router picks a protocol per channel. Channels without a route use the
// default protocol; with no default they pass through untouched.
type Router struct {
	fallback *Protocol
	routes   map[wire.ChannelID]*Protocol
}

// NewRouter creates a router with an optional default protocol.
func NewRouter(fallback *Protocol) *Router {
	return &Router{fallback: fallback, routes: make(map[wire.ChannelID]*Protocol)}
}

// Route binds channels to p. Routes must be set before the router is used.
func (r *Router) Route(p *Protocol, channels ...wire.ChannelID) *Router {
	for _, ch := range channels {
		r.routes[ch] = p
	}
	return r
}

// ProtocolFor returns the protocol handling ch.
func (r *Router) ProtocolFor(ch wire.ChannelID) (*Protocol, bool) {
	if p, ok := r.routes[ch]; ok {
		return p, true
	}
	return r.fallback, r.fallback != nil
}

func (r *Router) Sending(s *session.Session, msg any, ch wire.ChannelID, next pipeline.Next) {
	p, ok := r.ProtocolFor(ch)
	if !ok {
		next(msg)
		return
	}
	p.Sending(s, msg, ch, next)
}

func (r *Router) MessageReceived(s *session.Session, msg any, ch wire.ChannelID, next pipeline.Next) {
	p, ok := r.ProtocolFor(ch)
	if !ok {
		next(msg)
		return
	}
	p.MessageReceived(s, msg, ch, next)
}

var _ Handler = (*Router)(nil)
