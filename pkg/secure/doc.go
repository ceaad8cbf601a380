// Package secure provides byte transforms that encrypt session traffic.
//
// The networking core never depends on a cipher. Encryption is a
// Transform applied by a pipeline Handler registered near the transport
// end of the chain, so it seals last on the way out and opens first on the
// way in. Keys come from a Keyring owned by the endpoint.
package secure
