// Package queue provides the outbound frame queue used by every websocket writer.
//
// A Queue grows on demand up to a hard limit. Producers never block: a full or
// closed queue rejects the push and the caller decides whether that is fatal for
// the connection. A single consumer drains it with Pop, which blocks until data
// arrives or the queue is closed.
package queue
