package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/nano-relay/internal/broker"
	"github.com/rickgao/nano-relay/internal/config"
	"github.com/rickgao/nano-relay/internal/database"
	"github.com/rickgao/nano-relay/internal/journal"
	"github.com/rickgao/nano-relay/internal/link"
	"github.com/rickgao/nano-relay/internal/metrics"
	"github.com/rickgao/nano-relay/internal/mirror"
	"github.com/rickgao/nano-relay/internal/node"
	"github.com/rickgao/nano-relay/internal/router"
	"github.com/rickgao/nano-relay/internal/rpcproxy"
	"github.com/rickgao/nano-relay/internal/session"
	"github.com/rickgao/nano-relay/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (built-in defaults when empty)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}

	logger.Info("relay stopped")
}

func loadConfig(path string) (*config.RelayConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func linkConfig(name, url string, cfg config.LinksConfig) link.Config {
	return link.Config{
		Name:              name,
		URL:               url,
		MinReconnectDelay: cfg.MinReconnectDelay,
		MaxReconnectDelay: cfg.MaxReconnectDelay,
		ConnectTimeout:    cfg.ConnectTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		PingInterval:      cfg.PingInterval,
		PingTimeout:       cfg.PingTimeout,
		BufferSize:        cfg.BufferSize,
	}
}

// run wires every component and blocks until ctx is cancelled or one of
// them fails.
func run(ctx context.Context, cfg *config.RelayConfig, logger *slog.Logger) error {
	m := metrics.New()

	nodeClient := node.NewClient(
		cfg.Node.RPCURL,
		node.WithLogger(logger),
		node.WithTimeout(cfg.Node.RPCTimeout),
	)

	// Links
	upstream := link.New(linkConfig("upstream", cfg.Node.WSURL, cfg.Links), logger)
	links := []*link.Link{upstream}

	var upstreamAll *link.Link
	if cfg.Broadcast.Enabled {
		upstreamAll = link.New(linkConfig("upstream-all", cfg.Node.WSURL, cfg.Links), logger)
		links = append(links, upstreamAll)
	}

	var provider *link.Link
	if cfg.Provider.Enabled {
		provider = link.New(linkConfig("provider", cfg.Provider.WSURL, cfg.Links), logger)
		links = append(links, provider)
	}

	for _, l := range links {
		m.RegisterLink(l)
	}

	// Optional work journal
	var (
		recorder broker.Recorder
		journ    *journal.Journal
	)
	if cfg.Journal.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		if err := journal.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("create journal schema: %w", err)
		}

		journ = journal.New(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, m, logger)
		recorder = journ

		logger.Info("database connected")
	}

	// Optional confirmation mirror
	var publisher router.Publisher
	if cfg.Mirror.Enabled {
		mr, err := mirror.New(cfg.Mirror, m, logger)
		if err != nil {
			return fmt.Errorf("start mirror: %w", err)
		}
		defer mr.Close()
		publisher = mr
	}

	// Broker
	deps := broker.Deps{
		Upstream: upstream,
		Node:     nodeClient,
		Recorder: recorder,
		Metrics:  m,
	}
	if upstreamAll != nil {
		deps.UpstreamAll = upstreamAll
	}
	if provider != nil {
		deps.Provider = provider
	}

	b := broker.New(broker.Config{
		ProviderUser:   cfg.Provider.User,
		ProviderAPIKey: cfg.Provider.APIKey,
		WorkTimeout:    cfg.Provider.Timeout,
		NodeTimeout:    cfg.Node.RPCTimeout,
		Broadcast:      cfg.Broadcast.Enabled,
	}, deps, logger)

	sessions := session.NewManager(session.Config{
		MaxMessageSize: cfg.Server.MaxMessageSize,
		BufferSize:     cfg.Server.ClientBuffer,
		WriteTimeout:   cfg.Server.ClientWriteTimeout,
		PingInterval:   cfg.Server.PingInterval,
		MaxClients:     cfg.Server.MaxClients,
	}, b, logger)
	b.SetDeliverer(sessions)

	upstream.SetOnOpen(b.UpstreamOpened)
	if upstreamAll != nil {
		upstreamAll.SetOnOpen(b.UpstreamAllOpened)
	}

	// Router
	inputs := router.Inputs{Filtered: upstream.Messages()}
	if upstreamAll != nil {
		inputs.All = upstreamAll.Messages()
	}
	r := router.NewRouter(inputs, router.Deps{
		Resolver:  b,
		Deliverer: sessions,
		Mirror:    publisher,
		Metrics:   m,
	}, logger)

	proxy := rpcproxy.New(rpcproxy.Config{
		AllowedActions: cfg.Node.AllowedActions,
		Faucet: rpcproxy.FaucetConfig{
			Enabled: cfg.Node.Faucet.Enabled,
			Wallet:  cfg.Node.Faucet.Wallet,
			Source:  cfg.Node.Faucet.Source,
			Amount:  cfg.Node.Faucet.Amount,
		},
		MaxBodySize: cfg.Server.MaxMessageSize,
		Timeout:     cfg.Node.RPCTimeout,
	}, nodeClient, b, logger)

	// HTTP servers. Listeners are bound up front so a taken port fails startup.
	wsMux := http.NewServeMux()
	wsMux.Handle(cfg.Server.WSPath, sessions)

	linkStates := make([]linkState, 0, len(links))
	for _, l := range links {
		linkStates = append(linkStates, l)
	}

	servers := []*http.Server{
		{Addr: cfg.Server.WSAddr, Handler: wsMux},
		{Addr: cfg.Server.RPCAddr, Handler: proxy},
		{Addr: cfg.Metrics.Addr, Handler: newOpsHandler(cfg.Metrics.Path, m, b, linkStates)},
	}
	listeners := make([]net.Listener, len(servers))
	for i, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, prev := range listeners[:i] {
				prev.Close()
			}
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		listeners[i] = ln
	}

	g, gctx := errgroup.WithContext(ctx)

	if journ != nil {
		journ.Start(gctx)
	}
	r.Start(gctx)

	g.Go(func() error {
		return b.Run(gctx)
	})
	for _, l := range links {
		g.Go(func() error {
			return l.Run(gctx)
		})
	}
	for i, srv := range servers {
		ln := listeners[i]
		g.Go(func() error {
			logger.Info("listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	logger.Info("relay running",
		"ws", cfg.Server.WSAddr+cfg.Server.WSPath,
		"rpc", cfg.Server.RPCAddr,
		"health_url", fmt.Sprintf("http://%s/health", cfg.Metrics.Addr),
		"broadcast", cfg.Broadcast.Enabled,
		"provider", cfg.Provider.Enabled,
	)

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		for _, srv := range servers {
			srv.Shutdown(shutdownCtx)
		}
		// Hijacked websocket connections are not covered by Shutdown.
		sessions.CloseAll()
		r.Stop(shutdownCtx)
		return nil
	})

	err := g.Wait()

	if journ != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		journ.Stop(stopCtx)
		stopCancel()
	}

	return err
}
