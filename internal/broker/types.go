package broker

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/nano-relay/internal/link"
	"github.com/rickgao/nano-relay/internal/model"
	"github.com/rickgao/nano-relay/internal/work"
)

// FailedWorkMessage is sent to a client when both work paths fail.
const FailedWorkMessage = "work generation failed"

var (
	ErrStopped     = errors.New("broker stopped")
	ErrMissingHash = errors.New("missing hash")
	ErrWorkFailed  = errors.New(FailedWorkMessage)
)

// Upstream accepts frames for a node websocket.
type Upstream interface {
	Send(data []byte) error
}

// Provider is the link to the external work provider.
type Provider interface {
	Send(data []byte) error
	State() link.State
	Messages() <-chan link.Message
}

// WorkGenerator asks the node for work.
type WorkGenerator interface {
	WorkGenerate(ctx context.Context, hash string) (string, error)
}

// Deliverer sends a frame to one client.
type Deliverer interface {
	Deliver(id model.ClientID, data []byte) error
}

// Recorder receives terminal work outcomes.
type Recorder interface {
	Record(o work.Outcome)
}

// Config holds broker settings.
type Config struct {
	ProviderUser   string
	ProviderAPIKey string

	// WorkTimeout is the provider grace period before node fallback.
	WorkTimeout time.Duration

	// SweepInterval is how often expired requests are checked.
	SweepInterval time.Duration

	// NodeTimeout bounds one node work_generate call.
	NodeTimeout time.Duration

	// Broadcast enables listen_all.
	Broadcast bool
}

// DefaultConfig returns default broker settings.
func DefaultConfig() Config {
	return Config{
		WorkTimeout:   15 * time.Second,
		SweepInterval: time.Second,
		NodeTimeout:   30 * time.Second,
	}
}

// Stats is a point-in-time view of broker state.
type Stats struct {
	Clients     int `json:"clients"`
	Accounts    int `json:"accounts"`
	Listeners   int `json:"listeners"`
	PendingWork int `json:"pending_work"`
}
