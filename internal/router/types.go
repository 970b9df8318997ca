package router

import (
	"github.com/rickgao/nano-relay/internal/link"
	"github.com/rickgao/nano-relay/internal/metrics"
	"github.com/rickgao/nano-relay/internal/model"
)

// Resolver returns recipient snapshots.
type Resolver interface {
	Subscribers(accounts ...string) []model.ClientID
	Listeners() []model.ClientID
}

// Deliverer sends a frame to one client.
type Deliverer interface {
	Deliver(id model.ClientID, data []byte) error
}

// Publisher mirrors confirmations elsewhere.
type Publisher interface {
	Publish(account string, data []byte)
}

// Inputs are the upstream streams. All is nil when broadcast is disabled.
type Inputs struct {
	Filtered <-chan link.Message
	All      <-chan link.Message
}

// Deps are the router collaborators. Mirror and Metrics are optional.
type Deps struct {
	Resolver  Resolver
	Deliverer Deliverer
	Mirror    Publisher
	Metrics   *metrics.Metrics
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	EventsRouted     int64
	Ignored          int64
	Delivered        int64
	DeliveryFailures int64
}
