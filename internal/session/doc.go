// Package session owns downstream client websocket connections.
//
// Manager is an http.Handler that upgrades each request, issues a ClientID,
// and runs a read loop and a write loop per client. Inbound control messages
// are decoded and dispatched to a Handler; malformed JSON and unknown actions
// are dropped without closing the connection. Outbound frames go through a
// bounded per-client queue; a client that falls too far behind is
// disconnected rather than slowing fan-out to everyone else.
package session
