package work

import (
	"math"
	"time"

	"github.com/rickgao/nano-relay/internal/model"
)

// State is the lifecycle state of a pending request.
type State string

const (
	StateSent      State = "sent"
	StateFallback  State = "fallback"
	StateAbandoned State = "abandoned"
)

// Source says how a request ended.
type Source string

const (
	SourceProvider  Source = "provider"
	SourceNode      Source = "node"
	SourceFailed    Source = "failed"
	SourceAbandoned Source = "abandoned"
)

// Outcome is the terminal record of a request.
type Outcome struct {
	RequestID   uint64
	Client      model.ClientID
	Hash        string
	Source      Source
	Work        string
	Error       string
	Latency     time.Duration
	CompletedAt time.Time
}

// NewOutcome builds the outcome of req completed at now.
func NewOutcome(req Request, source Source, now time.Time) Outcome {
	return Outcome{
		RequestID:   req.ID,
		Client:      req.Client,
		Hash:        req.Hash,
		Source:      source,
		Latency:     now.Sub(req.CreatedAt),
		CompletedAt: now,
	}
}

// Request is a pending work request.
type Request struct {
	ID        uint64
	Client    model.ClientID
	Hash      string
	CreatedAt time.Time
	State     State
}

// Correlator matches provider replies to the clients that asked for them.
type Correlator struct {
	lastID   uint64
	pending  map[uint64]*Request
	byClient map[model.ClientID]map[uint64]struct{}
}

// New creates an empty Correlator.
func New() *Correlator {
	return &Correlator{
		pending:  make(map[uint64]*Request),
		byClient: make(map[model.ClientID]map[uint64]struct{}),
	}
}

// Submit allocates the next request id and tracks the request as Sent.
func (c *Correlator) Submit(client model.ClientID, hash string, now time.Time) Request {
	id := c.nextID()
	req := &Request{
		ID:        id,
		Client:    client,
		Hash:      hash,
		CreatedAt: now,
		State:     StateSent,
	}
	c.pending[id] = req

	ids, ok := c.byClient[client]
	if !ok {
		ids = make(map[uint64]struct{})
		c.byClient[client] = ids
	}
	ids[id] = struct{}{}

	return *req
}

// Resolve handles a successful provider reply. It returns the request and
// true only if the reply should be delivered; a reply for an unknown,
// abandoned or already-failed-over id is dropped.
func (c *Correlator) Resolve(id uint64) (Request, bool) {
	req, ok := c.pending[id]
	if !ok {
		return Request{}, false
	}

	switch req.State {
	case StateSent:
		c.remove(req)
		return *req, true
	case StateAbandoned:
		c.remove(req)
	}
	return Request{}, false
}

// Fallback moves a Sent request to the node path. It returns true if the
// caller should now ask the node for work.
func (c *Correlator) Fallback(id uint64) (Request, bool) {
	req, ok := c.pending[id]
	if !ok {
		return Request{}, false
	}

	switch req.State {
	case StateSent:
		req.State = StateFallback
		return *req, true
	case StateAbandoned:
		c.remove(req)
	}
	return Request{}, false
}

// Complete finishes a request on the node path. It returns true if the result
// should be delivered.
func (c *Correlator) Complete(id uint64) (Request, bool) {
	req, ok := c.pending[id]
	if !ok {
		return Request{}, false
	}
	c.remove(req)
	if req.State == StateFallback {
		return *req, true
	}
	return Request{}, false
}

// Abandon marks every request of client so a later reply is dropped. No
// cancellation is sent anywhere. It returns the requests marked.
func (c *Correlator) Abandon(client model.ClientID) []Request {
	ids := c.byClient[client]
	abandoned := make([]Request, 0, len(ids))
	for id := range ids {
		if req, ok := c.pending[id]; ok {
			req.State = StateAbandoned
			abandoned = append(abandoned, *req)
		}
	}
	delete(c.byClient, client)
	return abandoned
}

// Expire moves Sent requests older than grace to Fallback, returning them so
// the caller can ask the node, and purges abandoned requests older than grace.
func (c *Correlator) Expire(now time.Time, grace time.Duration) (fallback []Request, purged int) {
	for _, req := range c.pending {
		if now.Sub(req.CreatedAt) < grace {
			continue
		}
		switch req.State {
		case StateSent:
			req.State = StateFallback
			fallback = append(fallback, *req)
		case StateAbandoned:
			c.remove(req)
			purged++
		}
	}
	return fallback, purged
}

// Get returns a copy of a pending request.
func (c *Correlator) Get(id uint64) (Request, bool) {
	req, ok := c.pending[id]
	if !ok {
		return Request{}, false
	}
	return *req, true
}

// Len returns the number of tracked requests, abandoned ones included.
func (c *Correlator) Len() int {
	return len(c.pending)
}

// PendingFor returns the number of live requests of client.
func (c *Correlator) PendingFor(client model.ClientID) int {
	return len(c.byClient[client])
}

// nextID returns the next unused id, skipping 0 and ids still pending after a
// wrap of the id space.
func (c *Correlator) nextID() uint64 {
	for {
		if c.lastID == math.MaxUint64 {
			c.lastID = 0
		}
		c.lastID++
		if _, busy := c.pending[c.lastID]; !busy {
			return c.lastID
		}
	}
}

func (c *Correlator) remove(req *Request) {
	delete(c.pending, req.ID)
	if ids, ok := c.byClient[req.Client]; ok {
		delete(ids, req.ID)
		if len(ids) == 0 {
			delete(c.byClient, req.Client)
		}
	}
}
