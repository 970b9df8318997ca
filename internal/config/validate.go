package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Server.WSAddr == "" {
		return errors.New("server.ws_addr is required")
	}
	if c.Server.RPCAddr == "" {
		return errors.New("server.rpc_addr is required")
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("server.ws_path must start with /, got %q", c.Server.WSPath)
	}
	if c.Server.ClientBuffer < 1 {
		return errors.New("server.client_buffer must be >= 1")
	}
	if c.Server.MaxMessageSize < 1 {
		return errors.New("server.max_message_size must be >= 1")
	}
	if c.Server.MaxClients < 0 {
		return errors.New("server.max_clients must be >= 0")
	}

	if c.Node.WSURL == "" {
		return errors.New("node.ws_url is required")
	}
	if c.Node.RPCURL == "" {
		return errors.New("node.rpc_url is required")
	}
	if f := c.Node.Faucet; f.Enabled && (f.Wallet == "" || f.Source == "" || f.Amount == "") {
		return errors.New("node.faucet requires wallet, source and amount when enabled")
	}

	if p := c.Provider; p.Enabled {
		if p.WSURL == "" {
			return errors.New("provider.ws_url is required when enabled")
		}
		if p.User == "" || p.APIKey == "" {
			return errors.New("provider.user and provider.api_key are required when enabled")
		}
		if p.Timeout <= 0 {
			return errors.New("provider.timeout must be > 0")
		}
	}

	if c.Links.MinReconnectDelay < 0 {
		return errors.New("links.min_reconnect_delay must be >= 0")
	}
	if c.Links.MinReconnectDelay > c.Links.MaxReconnectDelay {
		return fmt.Errorf("links.min_reconnect_delay (%s) cannot exceed max_reconnect_delay (%s)",
			c.Links.MinReconnectDelay, c.Links.MaxReconnectDelay)
	}
	if c.Links.BufferSize < 1 {
		return errors.New("links.buffer_size must be >= 1")
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	if c.Mirror.Enabled {
		if len(c.Mirror.Brokers) == 0 {
			return errors.New("mirror.brokers is required when enabled")
		}
		if c.Mirror.Topic == "" {
			return errors.New("mirror.topic is required when enabled")
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
