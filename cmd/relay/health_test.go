package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rickgao/nano-relay/internal/broker"
	"github.com/rickgao/nano-relay/internal/config"
	"github.com/rickgao/nano-relay/internal/link"
	"github.com/rickgao/nano-relay/internal/metrics"
)

type fakeLink struct {
	name       string
	state      link.State
	reconnects int64
}

func (f *fakeLink) Name() string        { return f.name }
func (f *fakeLink) State() link.State   { return f.state }
func (f *fakeLink) StateValue() float64 { return float64(f.state) }
func (f *fakeLink) Reconnects() int64   { return f.reconnects }

type fakeStats broker.Stats

func (f fakeStats) Stats() broker.Stats { return broker.Stats(f) }

func getHealth(t *testing.T, links ...*fakeLink) (int, healthReply) {
	t.Helper()

	states := make([]linkState, 0, len(links))
	for _, l := range links {
		states = append(states, l)
	}
	h := newOpsHandler("/metrics", nil, fakeStats{Clients: 3, Accounts: 5, PendingWork: 1}, states)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var reply healthReply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return rec.Code, reply
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		links      []*fakeLink
		wantCode   int
		wantStatus string
	}{
		{
			name: "all open",
			links: []*fakeLink{
				{name: "upstream", state: link.StateOpen},
				{name: "provider", state: link.StateOpen},
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "provider down",
			links: []*fakeLink{
				{name: "upstream", state: link.StateOpen},
				{name: "provider", state: link.StateConnecting},
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name: "upstream down",
			links: []*fakeLink{
				{name: "upstream", state: link.StateDisconnected},
				{name: "provider", state: link.StateConnecting},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, reply := getHealth(t, tt.links...)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if reply.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", reply.Status, tt.wantStatus)
			}
		})
	}
}

func TestHealth_Body(t *testing.T) {
	_, reply := getHealth(t, &fakeLink{name: "upstream", state: link.StateOpen, reconnects: 2})

	got, ok := reply.Links["upstream"]
	if !ok {
		t.Fatalf("links = %v, want upstream", reply.Links)
	}
	if got.State != "open" || got.Reconnects != 2 {
		t.Errorf("upstream = %+v, want open/2", got)
	}
	if reply.Broker.Clients != 3 || reply.Broker.Accounts != 5 || reply.Broker.PendingWork != 1 {
		t.Errorf("broker = %+v", reply.Broker)
	}
}

func TestOpsHandler_Metrics(t *testing.T) {
	m := metrics.New()
	up := &fakeLink{name: "upstream", state: link.StateOpen}
	m.RegisterLink(up)

	h := newOpsHandler("/metrics", m, fakeStats{}, []linkState{up})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `nano_relay_link_state{link="upstream"} 2`) {
		t.Error("metrics output missing link state")
	}
}

func TestLinkConfig(t *testing.T) {
	cfg := config.Default()
	lc := linkConfig("provider", "wss://work.example", cfg.Links)

	if lc.Name != "provider" || lc.URL != "wss://work.example" {
		t.Errorf("linkConfig = %+v", lc)
	}
	if lc.MaxReconnectDelay != cfg.Links.MaxReconnectDelay {
		t.Errorf("MaxReconnectDelay = %v, want %v", lc.MaxReconnectDelay, cfg.Links.MaxReconnectDelay)
	}
}

func TestNewLogger(t *testing.T) {
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"})
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at warn level")
	}
}
