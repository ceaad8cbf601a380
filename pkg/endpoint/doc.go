// Package endpoint establishes sessions: a Client dials, a Server listens
// and tracks the sessions it accepted.
//
// Both are built from a Config (loadable from YAML or TOML), a protocol
// handler placed at the tail of every session pipeline, and Options with
// hooks and collaborators. Each endpoint owns its scheduler, worker pool
// and keyring and releases them on Close, after its sessions are closed.
//
// Pipeline layout per session, head (transport) to tail:
//
//	secure (when Config.Secret is set)
//	handlers added by Options.Pipeline
//	protocol
package endpoint
