package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSAddr             = "127.0.0.1:28102"
	DefaultRPCAddr            = "127.0.0.1:28101"
	DefaultWSPath             = "/"
	DefaultMaxMessageSize     = 64 * 1024
	DefaultClientBuffer       = 256
	DefaultClientWriteTimeout = 5 * time.Second
	DefaultServerPingInterval = 30 * time.Second
	DefaultNodeWSURL          = "ws://[::1]:7078"
	DefaultNodeRPCURL         = "http://[::1]:7076"
	DefaultRPCTimeout         = 30 * time.Second
	DefaultProviderTimeout    = 15 * time.Second
	DefaultMinReconnectDelay  = 10 * time.Millisecond
	DefaultMaxReconnectDelay  = 2 * time.Second
	DefaultConnectTimeout     = 1 * time.Second
	DefaultLinkWriteTimeout   = 5 * time.Second
	DefaultLinkPingInterval   = 30 * time.Second
	DefaultLinkPingTimeout    = 90 * time.Second
	DefaultLinkBufferSize     = 1024
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultJournalBuffer      = 10000
	DefaultMirrorClientID     = "nano-relay"
	DefaultMetricsAddr        = "127.0.0.1:9090"
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// DefaultAllowedActions are the node RPC actions the proxy forwards.
var DefaultAllowedActions = []string{
	"block_count",
	"account_info",
	"account_balance",
	"block_info",
	"pending",
	"process",
	"work_generate",
}

func (c *RelayConfig) applyDefaults() {
	// Server defaults
	if c.Server.WSAddr == "" {
		c.Server.WSAddr = DefaultWSAddr
	}
	if c.Server.RPCAddr == "" {
		c.Server.RPCAddr = DefaultRPCAddr
	}
	if c.Server.WSPath == "" {
		c.Server.WSPath = DefaultWSPath
	}
	if c.Server.MaxMessageSize == 0 {
		c.Server.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Server.ClientBuffer == 0 {
		c.Server.ClientBuffer = DefaultClientBuffer
	}
	if c.Server.ClientWriteTimeout == 0 {
		c.Server.ClientWriteTimeout = DefaultClientWriteTimeout
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultServerPingInterval
	}

	// Node defaults
	if c.Node.WSURL == "" {
		c.Node.WSURL = DefaultNodeWSURL
	}
	if c.Node.RPCURL == "" {
		c.Node.RPCURL = DefaultNodeRPCURL
	}
	if c.Node.RPCTimeout == 0 {
		c.Node.RPCTimeout = DefaultRPCTimeout
	}
	if len(c.Node.AllowedActions) == 0 {
		c.Node.AllowedActions = append([]string(nil), DefaultAllowedActions...)
	}

	// Provider defaults
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}

	// Link defaults
	if c.Links.MinReconnectDelay == 0 {
		c.Links.MinReconnectDelay = DefaultMinReconnectDelay
	}
	if c.Links.MaxReconnectDelay == 0 {
		c.Links.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if c.Links.ConnectTimeout == 0 {
		c.Links.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Links.WriteTimeout == 0 {
		c.Links.WriteTimeout = DefaultLinkWriteTimeout
	}
	if c.Links.PingInterval == 0 {
		c.Links.PingInterval = DefaultLinkPingInterval
	}
	if c.Links.PingTimeout == 0 {
		c.Links.PingTimeout = DefaultLinkPingTimeout
	}
	if c.Links.BufferSize == 0 {
		c.Links.BufferSize = DefaultLinkBufferSize
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultJournalBuffer
	}

	// Mirror defaults
	if c.Mirror.ClientID == "" {
		c.Mirror.ClientID = DefaultMirrorClientID
	}

	// Metrics defaults
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
