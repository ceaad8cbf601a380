package secure

import (
	"fmt"

	"github.com/PorkStudios/PorkLib-sub015/pkg/pipeline"
	"github.com/PorkStudios/PorkLib-sub015/pkg/session"
	"github.com/PorkStudios/PorkLib-sub015/pkg/wire"
)

// HandlerName is the pipeline name endpoints register Handler under.
const HandlerName = "secure"

// Handler seals outbound bytes and opens inbound bytes. Messages that are
// not byte slices pass through.
type Handler struct {
	t Transform
}

// NewHandler wraps t as a pipeline handler.
func NewHandler(t Transform) *Handler {
	return &Handler{t: t}
}

func (h *Handler) Sending(s *session.Session, msg any, ch wire.ChannelID, next pipeline.Next) {
	data, ok := msg.([]byte)
	if !ok {
		next(msg)
		return
	}
	sealed, err := h.t.Seal(data)
	if err != nil {
		panic(err)
	}
	next(sealed)
}

// MessageReceived drops messages that fail to open and raises the error.
func (h *Handler) MessageReceived(s *session.Session, msg any, ch wire.ChannelID, next pipeline.Next) {
	data, ok := msg.([]byte)
	if !ok {
		next(msg)
		return
	}
	plain, err := h.t.Open(data)
	if err != nil {
		s.Pipeline().FireExceptionCaught(fmt.Errorf("channel %s: %w", ch, err))
		return
	}
	next(plain)
}

var (
	_ pipeline.SendingHandler[*session.Session]  = (*Handler)(nil)
	_ pipeline.ReceivedHandler[*session.Session] = (*Handler)(nil)
)
