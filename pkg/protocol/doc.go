// Package protocol maps application packets to bytes and back.
//
// A Protocol is a registry of packet types, each with a numeric id unique
// within the protocol, an Encoder, a Decoder and a handler. Registered as
// the terminal handler of a session pipeline it encodes outbound values
// into packet bodies and dispatches inbound bodies to the matching handler.
//
// Packet body layout:
//
//	[uvarint id][encoded packet]
//
// A Router selects the protocol per channel, so different channels of one
// session can speak different protocols. A Stated protocol instead switches
// its packet set with the state of the session.
package protocol
