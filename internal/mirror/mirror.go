package mirror

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/rickgao/nano-relay/internal/config"
	"github.com/rickgao/nano-relay/internal/metrics"
)

// Stats contains mirror counters.
type Stats struct {
	Published int64
	Failed    int64
	Dropped   int64
}

// Mirror publishes events through a sarama async producer.
type Mirror struct {
	topic    string
	producer sarama.AsyncProducer
	logger   *slog.Logger
	metrics  *metrics.Metrics

	wg        sync.WaitGroup
	closeOnce sync.Once

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewProducerConfig returns the sarama settings used by the mirror.
func NewProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	return cfg
}

// New connects a producer to the configured brokers.
func New(cfg config.MirrorConfig, m *metrics.Metrics, logger *slog.Logger) (*Mirror, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("mirror: no brokers")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mirror: topic empty")
	}

	p, err := sarama.NewAsyncProducer(cfg.Brokers, NewProducerConfig(cfg.ClientID))
	if err != nil {
		return nil, err
	}
	return NewWithProducer(cfg.Topic, p, m, logger), nil
}

// NewWithProducer wraps an existing producer. The producer must return both
// successes and errors.
func NewWithProducer(topic string, p sarama.AsyncProducer, m *metrics.Metrics, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}

	mr := &Mirror{
		topic:    topic,
		producer: p,
		logger:   logger.With("component", "mirror", "topic", topic),
		metrics:  m,
	}

	mr.wg.Add(2)
	go mr.successLoop()
	go mr.errorLoop()

	return mr
}

// Publish queues an event keyed by account.
func (m *Mirror) Publish(account string, data []byte) {
	msg := &sarama.ProducerMessage{
		Topic: m.topic,
		Value: sarama.ByteEncoder(data),
	}
	if account != "" {
		msg.Key = sarama.StringEncoder(account)
	}

	select {
	case m.producer.Input() <- msg:
	default:
		m.dropped.Add(1)
		m.metrics.Mirrored(metrics.ResultDropped)
		m.logger.Debug("producer busy, dropping event", "account", account)
	}
}

// Close flushes buffered events and stops the producer.
func (m *Mirror) Close() error {
	m.closeOnce.Do(func() {
		m.producer.AsyncClose()
		m.wg.Wait()
		m.logger.Info("mirror closed",
			"published", m.published.Load(),
			"failed", m.failed.Load(),
			"dropped", m.dropped.Load(),
		)
	})
	return nil
}

// Stats returns current counters.
func (m *Mirror) Stats() Stats {
	return Stats{
		Published: m.published.Load(),
		Failed:    m.failed.Load(),
		Dropped:   m.dropped.Load(),
	}
}

func (m *Mirror) successLoop() {
	defer m.wg.Done()
	for range m.producer.Successes() {
		m.published.Add(1)
		m.metrics.Mirrored(metrics.ResultOK)
	}
}

func (m *Mirror) errorLoop() {
	defer m.wg.Done()
	for perr := range m.producer.Errors() {
		m.failed.Add(1)
		m.metrics.Mirrored(metrics.ResultFailed)
		m.logger.Warn("publish failed", "error", perr.Err)
	}
}
