package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nano_relay"

// Label values.
const (
	ModeFiltered  = "filtered"
	ModeBroadcast = "broadcast"

	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// LinkSource exposes a link to the collectors without importing it.
type LinkSource interface {
	Name() string
	StateValue() float64
	Reconnects() int64
}

// Metrics holds the relay collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	clients    prometheus.Gauge
	accounts   prometheus.Gauge
	listeners  prometheus.Gauge
	pending    prometheus.Gauge
	events     *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	work       *prometheus.CounterVec
	workTime   *prometheus.HistogramVec
	journal    *prometheus.CounterVec
	mirror     *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_connected",
			Help:      "Downstream client connections currently open.",
		}),
		accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts_subscribed",
			Help:      "Accounts with at least one subscriber.",
		}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listen_all_clients",
			Help:      "Clients receiving every confirmation.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "work_pending",
			Help:      "Work requests awaiting a reply, abandoned ones included.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_routed_total",
			Help:      "Confirmation events routed, by mode.",
		}, []string{"mode"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Frames delivered to clients, by result.",
		}, []string{"result"}),
		work: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_outcomes_total",
			Help:      "Terminal work request outcomes, by source.",
		}, []string{"source"}),
		workTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "work_latency_seconds",
			Help:      "Time from work request to reply, by source.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		journal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_rows_total",
			Help:      "Work journal rows, by result.",
		}, []string{"result"}),
		mirror: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_messages_total",
			Help:      "Confirmations mirrored to Kafka, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.clients,
		m.accounts,
		m.listeners,
		m.pending,
		m.events,
		m.deliveries,
		m.work,
		m.workTime,
		m.journal,
		m.mirror,
	)

	// Show the common series at zero before the first event.
	m.events.WithLabelValues(ModeFiltered).Add(0)
	m.deliveries.WithLabelValues(ResultOK).Add(0)
	m.deliveries.WithLabelValues(ResultFailed).Add(0)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterLink exports the state and reconnect count of a link.
func (m *Metrics) RegisterLink(l LinkSource) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"link": l.Name()}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "link_state",
			Help:        "Link state: 0 disconnected, 1 connecting, 2 open, 3 closing.",
			ConstLabels: labels,
		}, l.StateValue),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "link_reconnects_total",
			Help:        "Sessions lost and retried.",
			ConstLabels: labels,
		}, func() float64 { return float64(l.Reconnects()) }),
	)
}

// SetClients records the number of connected clients.
func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}

// SetAccounts records the number of subscribed accounts.
func (m *Metrics) SetAccounts(n int) {
	if m == nil {
		return
	}
	m.accounts.Set(float64(n))
}

// SetListeners records the number of listen_all clients.
func (m *Metrics) SetListeners(n int) {
	if m == nil {
		return
	}
	m.listeners.Set(float64(n))
}

// SetPendingWork records the number of tracked work requests.
func (m *Metrics) SetPendingWork(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// EventRouted counts one routed confirmation.
func (m *Metrics) EventRouted(mode string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(mode).Inc()
}

// Delivery counts one delivery attempt.
func (m *Metrics) Delivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

// WorkOutcome counts a terminal work outcome and its latency.
func (m *Metrics) WorkOutcome(source string, seconds float64) {
	if m == nil {
		return
	}
	m.work.WithLabelValues(source).Inc()
	m.workTime.WithLabelValues(source).Observe(seconds)
}

// JournalRows counts journal rows by result.
func (m *Metrics) JournalRows(result string, n int) {
	if m == nil {
		return
	}
	m.journal.WithLabelValues(result).Add(float64(n))
}

// Mirrored counts one mirror publish by result.
func (m *Metrics) Mirrored(result string) {
	if m == nil {
		return
	}
	m.mirror.WithLabelValues(result).Inc()
}
