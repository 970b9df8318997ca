package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/nano-relay/internal/metrics"
	"github.com/rickgao/nano-relay/internal/queue"
	"github.com/rickgao/nano-relay/internal/work"
)

// Table is the journal table name.
const Table = "work_outcomes"

// Schema creates the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS work_outcomes (
	request_id   BIGINT      NOT NULL,
	client_id    UUID        NOT NULL,
	hash         TEXT        NOT NULL,
	source       TEXT        NOT NULL,
	work         TEXT        NOT NULL DEFAULT '',
	error        TEXT        NOT NULL DEFAULT '',
	latency_ms   DOUBLE PRECISION NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS work_outcomes_completed_at_idx ON work_outcomes (completed_at);
`

var columns = []string{
	"request_id", "client_id", "hash", "source", "work", "error", "latency_ms", "completed_at",
}

// DB is the subset of *pgxpool.Pool the journal uses.
type DB interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config holds journal settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultConfig returns default journal settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Stats contains journal counters.
type Stats struct {
	Recorded int64
	Dropped  int64
	Inserted int64
	Flushes  int64
	Errors   int64
}

// Journal batches work outcomes into PostgreSQL.
type Journal struct {
	cfg     Config
	logger  *slog.Logger
	db      DB
	metrics *metrics.Metrics

	input *queue.Queue[work.Outcome]

	batch   []work.Outcome
	batchMu sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Journal. Call Start to begin writing.
func New(cfg Config, db DB, m *metrics.Metrics, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}

	return &Journal{
		cfg:     cfg,
		logger:  logger.With("component", "journal"),
		db:      db,
		metrics: m,
		input:   queue.New[work.Outcome](64, cfg.BufferSize),
		batch:   make([]work.Outcome, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the journal table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, Schema)
	return err
}

// Record queues an outcome. It never blocks.
func (j *Journal) Record(o work.Outcome) {
	err := j.input.Push(o)

	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	if err != nil {
		j.stats.Dropped++
		j.metrics.JournalRows(metrics.ResultDropped, 1)
		if errors.Is(err, queue.ErrFull) && j.stats.Dropped%1000 == 1 {
			j.logger.Warn("journal buffer full, dropping outcomes", "dropped", j.stats.Dropped)
		}
		return
	}
	j.stats.Recorded++
}

// Start begins consuming outcomes.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(2)
	go j.consumeLoop()
	go j.flushLoop()

	j.logger.Info("work journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued outcomes, writes them and shuts down.
func (j *Journal) Stop(ctx context.Context) error {
	j.logger.Info("stopping work journal")

	j.input.Close()
	if j.cancel != nil {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		j.logger.Warn("work journal stop timed out")
	}

	// Final flush
	for _, o := range j.input.Drain(0) {
		j.add(o)
	}
	j.flush(ctx)

	j.logger.Info("work journal stopped")
	return nil
}

// Stats returns current counters.
func (j *Journal) Stats() Stats {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	return j.stats
}

// consumeLoop moves outcomes from the queue into the batch.
func (j *Journal) consumeLoop() {
	defer j.wg.Done()

	for {
		o, ok := j.input.Pop()
		if !ok {
			return
		}
		// After Stop the remainder goes out in the final flush.
		if j.add(o) && j.ctx.Err() == nil {
			j.flush(j.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (j *Journal) flushLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.flush(j.ctx)
		}
	}
}

// add appends to the batch and reports whether it is full.
func (j *Journal) add(o work.Outcome) bool {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	j.batch = append(j.batch, o)
	return len(j.batch) >= j.cfg.BatchSize
}

// flush writes the current batch.
func (j *Journal) flush(ctx context.Context) {
	j.batchMu.Lock()
	if len(j.batch) == 0 {
		j.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := j.batch
	j.batch = make([]work.Outcome, 0, j.cfg.BatchSize)
	j.batchMu.Unlock()

	start := time.Now()

	n, err := j.db.CopyFrom(ctx, pgx.Identifier{Table}, columns, pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
		o := batch[i]
		return []any{
			int64(o.RequestID),
			[16]byte(o.Client),
			o.Hash,
			string(o.Source),
			o.Work,
			o.Error,
			float64(o.Latency) / float64(time.Millisecond),
			o.CompletedAt,
		}, nil
	}))
	if err != nil {
		j.logger.Error("journal copy failed", "error", err, "count", len(batch))
		j.metrics.JournalRows(metrics.ResultFailed, len(batch))
		j.batchMu.Lock()
		j.stats.Errors++
		j.batchMu.Unlock()
		return
	}

	j.metrics.JournalRows(metrics.ResultOK, int(n))
	j.batchMu.Lock()
	j.stats.Inserted += n
	j.stats.Flushes++
	j.batchMu.Unlock()

	j.logger.Debug("flushed work outcomes",
		"count", n,
		"duration", time.Since(start),
	)
}
