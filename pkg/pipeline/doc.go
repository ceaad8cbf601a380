// Package pipeline implements the ordered handler chain that processes a
// session's lifecycle and message events.
//
// Handlers are registered by name on a Builder and implement any subset of
// the capability interfaces (OpenedHandler, ClosedHandler, ReceivedHandler,
// SendingHandler, SentHandler, ExceptionHandler). Build freezes the chain:
// a Pipeline never changes after construction, so dispatch needs no locks.
//
// The chain has a head (the transport side) and a tail (the application
// side). Inbound events run head to tail in registration order; outbound
// events run tail to head:
//
//	transport <-> [head] crypto <-> codec <-> app [tail]
//
// Every handler receives a next callback. Calling it continues dispatch with
// a possibly transformed message; not calling it consumes the event. Calls
// after the first are ignored.
//
// A handler that panics raises an exception at its own position. Exceptions
// travel toward the tail through ExceptionHandlers; one that reaches the end
// of the chain goes to the Edge's Unhandled sink.
package pipeline
