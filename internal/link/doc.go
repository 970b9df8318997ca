// Package link implements the self-reconnecting websocket sessions the relay
// keeps towards its upstreams.
//
// A Link:
//   - Dials its URL and moves Disconnected -> Connecting -> Open
//   - Runs the OnOpen hook every time it becomes Open (used to resubscribe)
//   - Forwards every inbound frame on a single Messages channel that survives reconnects
//   - Reconnects with exponential backoff between a min and max delay, forever
//   - Queues outbound frames so Send never blocks on network I/O
//
// The node confirmation stream and the work provider each get one Link.
package link
