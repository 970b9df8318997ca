package main

import (
	"encoding/json"
	"net/http"

	"github.com/rickgao/nano-relay/internal/broker"
	"github.com/rickgao/nano-relay/internal/link"
	"github.com/rickgao/nano-relay/internal/metrics"
	"github.com/rickgao/nano-relay/internal/version"
)

type linkState interface {
	Name() string
	State() link.State
	Reconnects() int64
}

type statsSource interface {
	Stats() broker.Stats
}

type linkHealth struct {
	State      string `json:"state"`
	Reconnects int64  `json:"reconnects"`
}

type healthReply struct {
	Status  string                `json:"status"`
	Version string                `json:"version"`
	Links   map[string]linkHealth `json:"links"`
	Broker  broker.Stats          `json:"broker"`
}

// newOpsHandler serves /health and the Prometheus endpoint. The first link is
// the filtered upstream; the relay is unhealthy while it is not open and
// degraded while any other link is not open.
func newOpsHandler(metricsPath string, m *metrics.Metrics, stats statsSource, links []linkState) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, m.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := healthReply{
			Status:  "healthy",
			Version: version.Version,
			Links:   make(map[string]linkHealth, len(links)),
			Broker:  stats.Stats(),
		}

		for i, l := range links {
			state := l.State()
			health.Links[l.Name()] = linkHealth{
				State:      state.String(),
				Reconnects: l.Reconnects(),
			}
			if state == link.StateOpen {
				continue
			}
			if i == 0 {
				health.Status = "unhealthy"
			} else if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
