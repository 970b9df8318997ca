package config

import "time"

// RelayConfig is the root configuration of a relay process.
type RelayConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Node      NodeConfig      `yaml:"node"`
	Provider  ProviderConfig  `yaml:"provider"`
	Links     LinksConfig     `yaml:"links"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Journal   JournalConfig   `yaml:"journal"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the client-facing listeners.
type ServerConfig struct {
	WSAddr             string        `yaml:"ws_addr"`
	RPCAddr            string        `yaml:"rpc_addr"`
	WSPath             string        `yaml:"ws_path"`
	MaxMessageSize     int64         `yaml:"max_message_size"`
	ClientBuffer       int           `yaml:"client_buffer"`
	ClientWriteTimeout time.Duration `yaml:"client_write_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	MaxClients         int           `yaml:"max_clients"` // 0 = unlimited
}

// NodeConfig holds the node endpoints.
type NodeConfig struct {
	WSURL          string        `yaml:"ws_url"`
	RPCURL         string        `yaml:"rpc_url"`
	RPCTimeout     time.Duration `yaml:"rpc_timeout"`
	AllowedActions []string      `yaml:"allowed_actions"`
	Faucet         FaucetConfig  `yaml:"faucet"`
}

// FaucetConfig enables request_nano for development networks.
type FaucetConfig struct {
	Enabled bool   `yaml:"enabled"`
	Wallet  string `yaml:"wallet"`
	Source  string `yaml:"source"`
	Amount  string `yaml:"amount"` // raw
}

// ProviderConfig holds the external work provider settings.
type ProviderConfig struct {
	Enabled bool          `yaml:"enabled"`
	WSURL   string        `yaml:"ws_url"`
	User    string        `yaml:"user"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"` // grace period before node fallback
}

// LinksConfig holds settings shared by the upstream and provider links.
type LinksConfig struct {
	MinReconnectDelay time.Duration `yaml:"min_reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	BufferSize        int           `yaml:"buffer_size"`
}

// BroadcastConfig enables listen_all.
type BroadcastConfig struct {
	Enabled bool `yaml:"enabled"`
}

// JournalConfig holds the work journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MirrorConfig holds the Kafka confirmation mirror settings.
type MirrorConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
