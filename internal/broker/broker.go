package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rickgao/nano-relay/internal/link"
	"github.com/rickgao/nano-relay/internal/metrics"
	"github.com/rickgao/nano-relay/internal/model"
	"github.com/rickgao/nano-relay/internal/registry"
	"github.com/rickgao/nano-relay/internal/work"
)

// Deps are the collaborators of a Broker. Upstream and Node are required;
// the rest are optional.
type Deps struct {
	Upstream    Upstream
	UpstreamAll Upstream
	Provider    Provider
	Node        WorkGenerator
	Deliverer   Deliverer
	Recorder    Recorder
	Metrics     *metrics.Metrics
}

// Broker serializes registry and correlator access for every caller.
type Broker struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	upstream    Upstream
	upstreamAll Upstream
	provider    Provider
	node        WorkGenerator
	recorder    Recorder

	mu        sync.Mutex
	registry  *registry.Registry
	work      *work.Correlator
	clients   map[model.ClientID]struct{}
	listeners map[model.ClientID]struct{}
	waiters   map[model.ClientID]chan model.WorkReply
	deliverer Deliverer

	// Fallback calls outlive the request that started them; ctx ends them
	// on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New creates a Broker.
func New(cfg Config, deps Deps, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.WorkTimeout <= 0 {
		cfg.WorkTimeout = def.WorkTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.NodeTimeout <= 0 {
		cfg.NodeTimeout = def.NodeTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Broker{
		cfg:         cfg,
		logger:      logger.With("component", "broker"),
		metrics:     deps.Metrics,
		upstream:    deps.Upstream,
		upstreamAll: deps.UpstreamAll,
		provider:    deps.Provider,
		node:        deps.Node,
		recorder:    deps.Recorder,
		registry:    registry.New(),
		work:        work.New(),
		clients:     make(map[model.ClientID]struct{}),
		listeners:   make(map[model.ClientID]struct{}),
		waiters:     make(map[model.ClientID]chan model.WorkReply),
		deliverer:   deps.Deliverer,
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}
}

// SetDeliverer sets where client frames go. The session manager needs the
// broker first, so it is attached after construction.
func (b *Broker) SetDeliverer(d Deliverer) {
	b.mu.Lock()
	b.deliverer = d
	b.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Client lifecycle
// -----------------------------------------------------------------------------

// Connected registers a new client with no subscriptions.
func (b *Broker) Connected(id model.ClientID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clients[id] = struct{}{}
	b.syncGaugesLocked()
}

// Disconnected removes every subscription of the client and abandons its
// pending work. Replies that arrive later are dropped.
func (b *Broker) Disconnected(id model.ClientID) {
	b.mu.Lock()
	deltas := b.registry.RemoveClient(id)
	b.sendDeltasLocked(deltas)
	abandoned := b.work.Abandon(id)
	delete(b.listeners, id)
	delete(b.clients, id)
	b.syncGaugesLocked()
	b.mu.Unlock()

	if len(deltas) > 0 || len(abandoned) > 0 {
		b.logger.Debug("client cleaned up",
			"client_id", id,
			"accounts_released", len(deltas),
			"work_abandoned", len(abandoned),
		)
	}

	now := b.now()
	for _, req := range abandoned {
		b.record(work.NewOutcome(req, work.SourceAbandoned, now))
	}
}

// RegisterAccount subscribes the client to account.
func (b *Broker) RegisterAccount(id model.ClientID, account string) {
	if account == "" {
		b.logger.Debug("register_account without account", "client_id", id)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if delta, ok := b.registry.Add(id, account); ok {
		b.sendDeltasLocked([]registry.Delta{delta})
	}
	b.syncGaugesLocked()
}

// UnregisterAccount unsubscribes the client from account.
func (b *Broker) UnregisterAccount(id model.ClientID, account string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if delta, ok := b.registry.Remove(id, account); ok {
		b.sendDeltasLocked([]registry.Delta{delta})
	}
	b.syncGaugesLocked()
}

// ListenAll toggles the client's membership in the broadcast set. It is
// ignored unless broadcast mode is enabled.
func (b *Broker) ListenAll(id model.ClientID, on bool) {
	if !b.cfg.Broadcast {
		b.logger.Debug("listen_all ignored, broadcast disabled", "client_id", id)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if on {
		b.listeners[id] = struct{}{}
	} else {
		delete(b.listeners, id)
	}
	b.syncGaugesLocked()
}

// -----------------------------------------------------------------------------
// Router resolution
// -----------------------------------------------------------------------------

// Subscribers returns a snapshot of the distinct clients subscribed to any of
// the accounts.
func (b *Broker) Subscribers(accounts ...string) []model.ClientID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.Union(accounts...)
}

// Listeners returns a snapshot of the listen_all clients.
func (b *Broker) Listeners() []model.ClientID {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.ClientID, 0, len(b.listeners))
	for id := range b.listeners {
		out = append(out, id)
	}
	return out
}

// -----------------------------------------------------------------------------
// Upstream hooks
// -----------------------------------------------------------------------------

// UpstreamOpened resubscribes the full account set. It runs each time the
// filtered upstream link opens.
func (b *Broker) UpstreamOpened() {
	b.mu.Lock()
	defer b.mu.Unlock()

	accounts := b.registry.Accounts()
	b.sendLocked(b.upstream, model.SubscribeAccounts(accounts))
	b.logger.Info("upstream subscribed", "accounts", len(accounts))
}

// UpstreamAllOpened subscribes the broadcast link to every confirmation.
func (b *Broker) UpstreamAllOpened() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sendLocked(b.upstreamAll, model.SubscribeAll())
	b.logger.Info("upstream subscribed to all confirmations")
}

// sendDeltasLocked sends the deltas as one update. While the link is down the
// frame is dropped; the resubscription on open carries the current set.
func (b *Broker) sendDeltasLocked(deltas []registry.Delta) {
	if len(deltas) == 0 {
		return
	}

	var add, del []string
	for _, d := range deltas {
		switch d.Kind {
		case registry.DeltaAdd:
			add = append(add, d.Account)
		case registry.DeltaRemove:
			del = append(del, d.Account)
		}
	}
	b.sendLocked(b.upstream, model.UpdateAccounts(add, del))
}

func (b *Broker) sendLocked(up Upstream, cmd model.UpstreamCommand) {
	if up == nil {
		return
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		b.logger.Error("failed to encode upstream command", "error", err)
		return
	}

	switch err := up.Send(data); {
	case errors.Is(err, link.ErrNotConnected):
		b.logger.Debug("upstream not connected, command deferred to resubscribe",
			"action", cmd.Action,
		)
	case err != nil:
		b.logger.Warn("failed to send upstream command", "action", cmd.Action, "error", err)
	}
}

// -----------------------------------------------------------------------------
// Work requests
// -----------------------------------------------------------------------------

// WorkGenerate submits a work request for the client. The reply is delivered
// asynchronously as {work, hash} or {error, hash}.
func (b *Broker) WorkGenerate(id model.ClientID, hash string) {
	if hash == "" {
		b.logger.Debug("work_generate without hash", "client_id", id)
		return
	}

	b.mu.Lock()
	req := b.work.Submit(id, hash, b.now())
	sent := b.sendProviderLocked(req)
	if !sent {
		req, _ = b.work.Fallback(req.ID)
	}
	b.syncGaugesLocked()
	b.mu.Unlock()

	if !sent {
		b.fallback(req)
	}
}

// GenerateWork runs a work request for a synchronous caller and waits for the
// result.
func (b *Broker) GenerateWork(ctx context.Context, hash string) (string, error) {
	if hash == "" {
		return "", ErrMissingHash
	}

	id := model.NewClientID()
	ch := make(chan model.WorkReply, 1)

	b.mu.Lock()
	b.waiters[id] = ch
	b.mu.Unlock()

	defer b.Disconnected(id)
	defer func() {
		b.mu.Lock()
		delete(b.waiters, id)
		b.mu.Unlock()
	}()

	b.WorkGenerate(id, hash)

	select {
	case reply := <-ch:
		if reply.Error != "" {
			return "", ErrWorkFailed
		}
		return reply.Work, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-b.ctx.Done():
		return "", ErrStopped
	}
}

// ProviderAvailable reports whether requests currently go to the provider.
func (b *Broker) ProviderAvailable() bool {
	return b.provider != nil && b.provider.State() == link.StateOpen
}

func (b *Broker) sendProviderLocked(req work.Request) bool {
	if b.provider == nil || b.provider.State() != link.StateOpen {
		return false
	}

	data, err := json.Marshal(model.ProviderRequest{
		User:   b.cfg.ProviderUser,
		APIKey: b.cfg.ProviderAPIKey,
		Hash:   req.Hash,
		ID:     req.ID,
	})
	if err != nil {
		return false
	}
	if err := b.provider.Send(data); err != nil {
		b.logger.Warn("failed to send work request to provider, using node",
			"id", req.ID,
			"error", err,
		)
		return false
	}
	return true
}

// HandleProviderMessage matches a provider reply to its request. A reply
// carrying an error, or no work, moves the request to the node.
func (b *Broker) HandleProviderMessage(data []byte) {
	if !gjson.ValidBytes(data) {
		b.logger.Debug("ignoring malformed provider frame")
		return
	}

	reply := gjson.ParseBytes(data)
	idField := reply.Get("id")
	if !idField.Exists() {
		b.logger.Debug("ignoring provider frame without id")
		return
	}
	id := idField.Uint()
	errField := reply.Get("error")
	workValue := reply.Get("work").String()

	if errField.Exists() || workValue == "" {
		b.mu.Lock()
		req, ok := b.work.Fallback(id)
		b.syncGaugesLocked()
		b.mu.Unlock()

		if !ok {
			b.logger.Debug("dropping provider error for unknown request", "id", id)
			return
		}
		b.logger.Info("provider failed, using node",
			"id", id,
			"hash", req.Hash,
			"error", errField.String(),
		)
		b.fallback(req)
		return
	}

	b.mu.Lock()
	req, ok := b.work.Resolve(id)
	b.syncGaugesLocked()
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("dropping provider reply for unknown request", "id", id)
		return
	}
	b.finish(req, work.SourceProvider, workValue, nil)
}

// fallback asks the node for work on its own goroutine.
func (b *Broker) fallback(req work.Request) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		var (
			value string
			err   error
		)
		if b.node == nil {
			err = errors.New("no node configured")
		} else {
			ctx, cancel := context.WithTimeout(b.ctx, b.cfg.NodeTimeout)
			value, err = b.node.WorkGenerate(ctx, req.Hash)
			cancel()
		}

		b.mu.Lock()
		done, ok := b.work.Complete(req.ID)
		b.syncGaugesLocked()
		b.mu.Unlock()

		if !ok {
			b.logger.Debug("dropping node work for abandoned request", "id", req.ID)
			return
		}
		if err != nil {
			b.logger.Warn("node work generation failed", "id", req.ID, "hash", req.Hash, "error", err)
			b.finish(done, work.SourceFailed, "", fmt.Errorf("node work_generate: %w", err))
			return
		}
		b.finish(done, work.SourceNode, value, nil)
	}()
}

func (b *Broker) finish(req work.Request, source work.Source, value string, failure error) {
	o := work.NewOutcome(req, source, b.now())
	reply := model.WorkReply{Work: value, Hash: req.Hash}
	if failure != nil {
		o.Error = failure.Error()
		reply = model.WorkReply{Hash: req.Hash, Error: FailedWorkMessage}
	}
	o.Work = reply.Work

	b.record(o)
	b.reply(req.Client, reply)
}

func (b *Broker) reply(id model.ClientID, reply model.WorkReply) {
	b.mu.Lock()
	ch, waiting := b.waiters[id]
	d := b.deliverer
	b.mu.Unlock()

	if waiting {
		select {
		case ch <- reply:
		default:
		}
		return
	}
	if d == nil {
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		b.logger.Error("failed to encode work reply", "error", err)
		return
	}
	if err := d.Deliver(id, data); err != nil {
		b.metrics.Delivery(metrics.ResultFailed)
		b.logger.Warn("failed to deliver work reply", "client_id", id, "error", err)
		return
	}
	b.metrics.Delivery(metrics.ResultOK)
}

func (b *Broker) record(o work.Outcome) {
	b.metrics.WorkOutcome(string(o.Source), o.Latency.Seconds())
	if b.recorder != nil {
		b.recorder.Record(o)
	}
}

// -----------------------------------------------------------------------------
// Loop
// -----------------------------------------------------------------------------

// Run consumes provider replies and sweeps expired requests until ctx is
// cancelled. In-flight node fallbacks are cancelled and awaited on return.
func (b *Broker) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	var replies <-chan link.Message
	if b.provider != nil {
		replies = b.provider.Messages()
	}

	b.logger.Info("broker started",
		"provider", b.provider != nil,
		"broadcast", b.cfg.Broadcast,
		"work_timeout", b.cfg.WorkTimeout,
	)

	defer func() {
		b.cancel()
		b.wg.Wait()
		b.logger.Info("broker stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg := <-replies:
			b.HandleProviderMessage(msg.Data)

		case <-ticker.C:
			b.Sweep()
		}
	}
}

// Sweep moves requests past the grace period to the node and purges old
// abandoned ones.
func (b *Broker) Sweep() {
	b.mu.Lock()
	expired, purged := b.work.Expire(b.now(), b.cfg.WorkTimeout)
	b.syncGaugesLocked()
	b.mu.Unlock()

	if purged > 0 {
		b.logger.Debug("purged abandoned work requests", "count", purged)
	}
	for _, req := range expired {
		b.logger.Warn("provider timed out, using node", "id", req.ID, "hash", req.Hash)
		b.fallback(req)
	}
}

// Stats returns current counts.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Clients:     len(b.clients),
		Accounts:    b.registry.AccountCount(),
		Listeners:   len(b.listeners),
		PendingWork: b.work.Len(),
	}
}

func (b *Broker) syncGaugesLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.SetClients(len(b.clients))
	b.metrics.SetAccounts(b.registry.AccountCount())
	b.metrics.SetListeners(len(b.listeners))
	b.metrics.SetPendingWork(b.work.Len())
}
