package link

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Link is a websocket session that reconnects on failure, forever.
type Link struct {
	cfg    Config
	logger *slog.Logger

	// Stable output across reconnects
	messages chan Message

	mu       sync.RWMutex
	state    State
	client   Client
	attempts int // consecutive failed attempts, reset on Open
	onOpen   func()

	opens      atomic.Int64
	reconnects atomic.Int64

	// newClient is swapped in tests.
	newClient func(name string, cfg ClientConfig, logger *slog.Logger) Client
}

// New creates a Link. Call Run to start it.
func New(cfg Config, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	return &Link{
		cfg:       cfg,
		logger:    logger.With("link", cfg.Name),
		messages:  make(chan Message, cfg.BufferSize),
		state:     StateDisconnected,
		newClient: NewClient,
	}
}

// Name returns the link name.
func (l *Link) Name() string {
	return l.cfg.Name
}

// SetOnOpen registers a hook run on the link goroutine each time the session
// becomes Open, before any inbound frame of that session is forwarded.
func (l *Link) SetOnOpen(fn func()) {
	l.mu.Lock()
	l.onOpen = fn
	l.mu.Unlock()
}

// Messages returns inbound frames from every session of this link.
func (l *Link) Messages() <-chan Message {
	return l.messages
}

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// StateValue returns the state as a number for gauges.
func (l *Link) StateValue() float64 {
	return float64(l.State())
}

// Attempts returns the number of consecutive failed connection attempts.
func (l *Link) Attempts() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.attempts
}

// Opens returns how many times the link reached Open.
func (l *Link) Opens() int64 {
	return l.opens.Load()
}

// Reconnects returns how many sessions were lost and retried.
func (l *Link) Reconnects() int64 {
	return l.reconnects.Load()
}

// Send queues a frame on the current session. Frames are never buffered
// across sessions: while the link is not Open, Send fails with ErrNotConnected.
func (l *Link) Send(data []byte) error {
	l.mu.RLock()
	state, c := l.state, l.client
	l.mu.RUnlock()

	if state != StateOpen || c == nil {
		return ErrNotConnected
	}
	return c.Send(data)
}

// Run drives the connect / serve / backoff cycle until ctx is cancelled.
func (l *Link) Run(ctx context.Context) error {
	l.logger.Info("link starting", "url", l.cfg.URL)

	for {
		l.setState(StateConnecting, nil)

		c := l.newClient(l.cfg.Name, l.cfg.clientConfig(), l.logger)
		if err := c.Connect(ctx); err != nil {
			c.Close()
			if ctx.Err() != nil {
				l.setState(StateDisconnected, nil)
				return ctx.Err()
			}

			wait := l.failAttempt()
			l.logger.Warn("connection failed",
				"error", err,
				"attempt", l.Attempts(),
				"retry_in", wait,
			)
			if !sleep(ctx, wait) {
				l.setState(StateDisconnected, nil)
				return ctx.Err()
			}
			continue
		}

		l.mu.Lock()
		l.client = c
		l.state = StateOpen
		l.attempts = 0
		onOpen := l.onOpen
		l.mu.Unlock()
		l.opens.Add(1)

		l.logger.Info("link open")
		if onOpen != nil {
			onOpen()
		}

		err := l.serve(ctx, c)

		if ctx.Err() != nil {
			l.setState(StateClosing, nil)
			c.Close()
			l.setState(StateDisconnected, nil)
			l.logger.Info("link stopped")
			return ctx.Err()
		}

		l.setState(StateDisconnected, nil)
		c.Close()
		l.reconnects.Add(1)

		wait := Backoff(l.Attempts(), l.cfg.MinReconnectDelay, l.cfg.MaxReconnectDelay)
		l.logger.Warn("link lost, reconnecting", "error", err, "retry_in", wait)
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// serve forwards frames from one session until it fails or ctx ends.
func (l *Link) serve(ctx context.Context, c Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-c.Errors():
			return err

		case msg := <-c.Messages():
			select {
			case l.messages <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// failAttempt records a failed attempt and returns the wait before the next.
func (l *Link) failAttempt() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	wait := Backoff(l.attempts, l.cfg.MinReconnectDelay, l.cfg.MaxReconnectDelay)
	l.attempts++
	return wait
}

func (l *Link) setState(s State, c Client) {
	l.mu.Lock()
	l.state = s
	l.client = c
	l.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
