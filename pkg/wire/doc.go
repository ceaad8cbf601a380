// Package wire defines the value types shared by every layer of the network
// core: delivery reliability levels, channel identifiers, channeled packets,
// and the control messages that manage channels and session liveness.
//
// # Control Side-Channel
//
// Control messages never travel on a user channel. They are framed on the
// reserved ControlChannel id so that channel management rides the strongest
// ordering guarantee the transport offers without colliding with payload
// traffic on the default channel.
//
// # CBOR Integer Keys
//
// Control messages use CBOR (RFC 8949) with integer keys and deterministic
// encoding, so identical messages always encode to identical bytes.
package wire
