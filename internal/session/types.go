package session

import (
	"errors"
	"time"

	"github.com/rickgao/nano-relay/internal/model"
)

var (
	ErrUnknownClient    = errors.New("unknown client")
	ErrClientBufferFull = errors.New("client send buffer full")
	ErrManagerClosed    = errors.New("session manager closed")
)

// Handler receives client lifecycle and control messages.
type Handler interface {
	Connected(id model.ClientID)
	Disconnected(id model.ClientID)
	RegisterAccount(id model.ClientID, account string)
	UnregisterAccount(id model.ClientID, account string)
	ListenAll(id model.ClientID, on bool)
	WorkGenerate(id model.ClientID, hash string)
}

// Config holds session settings.
type Config struct {
	// MaxMessageSize limits inbound frames; larger frames close the client.
	MaxMessageSize int64

	// BufferSize is the maximum number of queued outbound frames per client.
	BufferSize int

	WriteTimeout time.Duration

	// PingInterval is the keepalive period. A client silent for two
	// intervals is dropped. Zero disables keepalive.
	PingInterval time.Duration

	// MaxClients caps concurrent clients. Zero means unlimited.
	MaxClients int
}

// DefaultConfig returns default session settings.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize: 64 * 1024,
		BufferSize:     256,
		WriteTimeout:   5 * time.Second,
		PingInterval:   30 * time.Second,
	}
}
