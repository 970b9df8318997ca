package link

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrSendBufferFull  = errors.New("send buffer full")
)

// State is the connection state of a Link.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Message is an inbound frame.
type Message struct {
	Data       []byte    // Raw frame bytes
	Link       string    // Name of the link it arrived on
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a single websocket session.
type ClientConfig struct {
	URL            string
	Header         http.Header   // Extra handshake headers
	ConnectTimeout time.Duration // Handshake timeout
	WriteTimeout   time.Duration // Write deadline per frame
	PingInterval   time.Duration // How often we ping the peer
	PingTimeout    time.Duration // Max silence (no pong/ping) before the session is stale
	BufferSize     int           // Inbound channel size and outbound queue limit
}

// Config configures a Link.
type Config struct {
	Name              string // "upstream", "upstream-all", "provider"
	URL               string
	Header            http.Header
	MinReconnectDelay time.Duration
	MaxReconnectDelay time.Duration
	ConnectTimeout    time.Duration
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	PingTimeout       time.Duration
	BufferSize        int
}

// DefaultConfig mirrors the reconnect profile the node tooling expects:
// fast first retry, capped at two seconds.
func DefaultConfig() Config {
	return Config{
		MinReconnectDelay: 10 * time.Millisecond,
		MaxReconnectDelay: 2 * time.Second,
		ConnectTimeout:    1 * time.Second,
		WriteTimeout:      5 * time.Second,
		PingInterval:      30 * time.Second,
		PingTimeout:       90 * time.Second,
		BufferSize:        1024,
	}
}

func (c Config) clientConfig() ClientConfig {
	return ClientConfig{
		URL:            c.URL,
		Header:         c.Header,
		ConnectTimeout: c.ConnectTimeout,
		WriteTimeout:   c.WriteTimeout,
		PingInterval:   c.PingInterval,
		PingTimeout:    c.PingTimeout,
		BufferSize:     c.BufferSize,
	}
}

// Backoff returns the wait before reconnect attempt n (0-based): min doubled n
// times, capped at max.
func Backoff(attempt int, min, max time.Duration) time.Duration {
	if min <= 0 {
		return 0
	}
	wait := min
	for i := 0; i < attempt && wait < max; i++ {
		wait *= 2
	}
	if max > 0 && wait > max {
		wait = max
	}
	return wait
}
