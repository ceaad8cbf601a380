// Package discovery advertises pnet servers over mDNS/DNS-SD and browses
// for them.
//
// Servers register the service type _pnet._tcp. The instance name is the
// server name chosen by the operator. TXT records describe how to connect:
//
//	tr   transport engine name (tcp, websocket)
//	rel  comma separated reliabilities the engine honors
//	path HTTP path of a websocket endpoint (optional)
//	ver  protocol name advertised by the server (optional)
package discovery
