package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/rickgao/nano-relay/internal/link"
	"github.com/rickgao/nano-relay/internal/metrics"
	"github.com/rickgao/nano-relay/internal/model"
)

// Router routes upstream confirmations to client sessions.
type Router interface {
	// Start begins routing messages from the inputs.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router.
	Stop(ctx context.Context) error

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	logger  *slog.Logger
	inputs  Inputs
	deps    Deps
	metrics *metrics.Metrics

	// Mirror only one stream so each confirmation is published once.
	mirrorFiltered bool

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	received int64
	routed   int64
	ignored  int64
	ok       int64
	failed   int64
}

// NewRouter creates a new event router.
func NewRouter(inputs Inputs, deps Deps, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		logger:         logger.With("component", "router"),
		inputs:         inputs,
		deps:           deps,
		metrics:        deps.Metrics,
		mirrorFiltered: inputs.All == nil,
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("event router started",
		"broadcast", r.inputs.All != nil,
		"mirror", r.deps.Mirror != nil,
	)

	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping event router")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event router stopped")
	case <-ctx.Done():
		r.logger.Warn("event router stop timed out")
	}

	return nil
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		MessagesReceived: r.received,
		EventsRouted:     r.routed,
		Ignored:          r.ignored,
		Delivered:        r.ok,
		DeliveryFailures: r.failed,
	}
}

// routeLoop is the main routing goroutine.
func (r *router) routeLoop() {
	defer r.wg.Done()

	filtered, all := r.inputs.Filtered, r.inputs.All

	for {
		select {
		case <-r.ctx.Done():
			return

		case msg, ok := <-filtered:
			if !ok {
				r.logger.Info("filtered input closed")
				filtered = nil
				continue
			}
			r.route(msg, true)

		case msg, ok := <-all:
			if !ok {
				r.logger.Info("broadcast input closed")
				all = nil
				continue
			}
			r.route(msg, false)
		}
	}
}

// route parses one frame and delivers it to its recipients.
func (r *router) route(msg link.Message, filtered bool) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	if !gjson.ValidBytes(msg.Data) {
		r.ignore("invalid json", msg)
		return
	}

	fields := gjson.GetManyBytes(msg.Data,
		"topic",
		model.EventAccountPath,
		model.EventLinkAccountPath,
	)
	if fields[0].String() != model.TopicConfirmation {
		// Subscription acks and other topics.
		r.ignore("not a confirmation", msg)
		return
	}
	account, linkAccount := fields[1].String(), fields[2].String()

	var (
		recipients []model.ClientID
		mode       string
	)
	if filtered {
		recipients = r.deps.Resolver.Subscribers(account, linkAccount)
		mode = metrics.ModeFiltered
	} else {
		recipients = r.deps.Resolver.Listeners()
		mode = metrics.ModeBroadcast
	}

	out, err := sjson.SetBytes(msg.Data, model.FilteredMarkerField, filtered)
	if err != nil {
		r.ignore("cannot mark event", msg)
		return
	}

	if r.deps.Mirror != nil && filtered == r.mirrorFiltered {
		r.deps.Mirror.Publish(account, msg.Data)
	}

	r.metrics.EventRouted(mode)
	r.mu.Lock()
	r.routed++
	r.mu.Unlock()

	for _, id := range recipients {
		r.deliver(id, out)
	}
}

func (r *router) deliver(id model.ClientID, data []byte) {
	if err := r.deps.Deliverer.Deliver(id, data); err != nil {
		r.logger.Warn("failed to deliver event", "client_id", id, "error", err)
		r.metrics.Delivery(metrics.ResultFailed)
		r.mu.Lock()
		r.failed++
		r.mu.Unlock()
		return
	}

	r.metrics.Delivery(metrics.ResultOK)
	r.mu.Lock()
	r.ok++
	r.mu.Unlock()
}

func (r *router) ignore(reason string, msg link.Message) {
	r.logger.Debug("ignoring upstream frame", "reason", reason, "link", msg.Link)
	r.mu.Lock()
	r.ignored++
	r.mu.Unlock()
}
