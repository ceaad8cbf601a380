package pipeline

import "github.com/PorkStudios/PorkLib-sub015/pkg/wire"

// Next continues dispatch of a message event.
type Next func(msg any)

// OpenedHandler observes a session becoming active.
type OpenedHandler[S any] interface {
	SessionOpened(s S, next func())
}

// ClosedHandler observes a session closing.
type ClosedHandler[S any] interface {
	SessionClosed(s S, reason error, next func())
}

// ReceivedHandler processes inbound messages, head to tail.
type ReceivedHandler[S any] interface {
	MessageReceived(s S, msg any, ch wire.ChannelID, next Next)
}

// SendingHandler processes outbound messages, tail to head. A handler may
// replace the message, for example to encode or encrypt it.
type SendingHandler[S any] interface {
	Sending(s S, msg any, ch wire.ChannelID, next Next)
}

// SentHandler observes messages after the transport wrote them, tail to
// head. msg is the message originally passed to the session.
type SentHandler[S any] interface {
	MessageSent(s S, msg any, ch wire.ChannelID, next Next)
}

// ExceptionHandler handles errors raised in the pipeline or the transport.
type ExceptionHandler[S any] interface {
	ExceptionCaught(s S, err error, next func(error))
}

// ReceivedFunc adapts a function to ReceivedHandler.
type ReceivedFunc[S any] func(s S, msg any, ch wire.ChannelID, next Next)

// MessageReceived calls f.
func (f ReceivedFunc[S]) MessageReceived(s S, msg any, ch wire.ChannelID, next Next) {
	f(s, msg, ch, next)
}

// SendingFunc adapts a function to SendingHandler.
type SendingFunc[S any] func(s S, msg any, ch wire.ChannelID, next Next)

// Sending calls f.
func (f SendingFunc[S]) Sending(s S, msg any, ch wire.ChannelID, next Next) {
	f(s, msg, ch, next)
}

// ExceptionFunc adapts a function to ExceptionHandler.
type ExceptionFunc[S any] func(s S, err error, next func(error))

// ExceptionCaught calls f.
func (f ExceptionFunc[S]) ExceptionCaught(s S, err error, next func(error)) {
	f(s, err, next)
}

// OnReceived returns a ReceivedHandler that only sees messages of type T.
// Other messages pass through untouched.
func OnReceived[S, T any](fn func(s S, msg T, ch wire.ChannelID, next Next)) ReceivedHandler[S] {
	return ReceivedFunc[S](func(s S, msg any, ch wire.ChannelID, next Next) {
		if m, ok := msg.(T); ok {
			fn(s, m, ch, next)
			return
		}
		next(msg)
	})
}

// Edge connects the ends of a pipeline to its owner.
type Edge[S any] interface {
	// Write receives outbound messages that passed the head. The error is
	// returned to the sender.
	Write(s S, msg any, ch wire.ChannelID, done func(error)) error

	// Unconsumed receives inbound messages that passed the tail.
	Unconsumed(s S, msg any, ch wire.ChannelID)

	// Unhandled receives exceptions that passed the tail.
	Unhandled(s S, err error)
}

func hasCapability[S any](h any) bool {
	switch h.(type) {
	case OpenedHandler[S], ClosedHandler[S], ReceivedHandler[S],
		SendingHandler[S], SentHandler[S], ExceptionHandler[S]:
		return true
	}
	return false
}
