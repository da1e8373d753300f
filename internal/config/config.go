// Package config assembles runtime settings for the sync agent.
package config

import "time"

// Config holds runtime settings for the marksync agent.
//
// Reconnect* fields tune the bounded backoff policy of the connection
// manager; they are deliberately configuration rather than constants.
type Config struct {
	// ChannelURL is the websocket endpoint of the replication channel.
	ChannelURL string

	// Origin is the domain whose highlights this agent instance syncs.
	Origin string

	// EventDBPath is the SQLite file holding the local event log.
	EventDBPath string

	// KVPath is the bbolt file holding status snapshots and session state.
	KVPath string

	// VaultEnabled turns on domain-scoped encryption of synced payloads.
	VaultEnabled bool

	// SendTimeout bounds each outbound replication send.
	SendTimeout time.Duration

	ReconnectInitial     time.Duration
	ReconnectMax         time.Duration
	ReconnectMultiplier  float64
	ReconnectMaxAttempts uint64
	DialTimeout          time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ChannelURL = "ws://127.0.0.1:9400/sync"
	c.Origin = ""
	c.EventDBPath = "marksync.db"
	c.KVPath = "marksync.kv"
	c.VaultEnabled = false
	c.SendTimeout = 10 * time.Second
	c.ReconnectInitial = 5 * time.Second
	c.ReconnectMax = 5 * time.Minute
	c.ReconnectMultiplier = 2.0
	c.ReconnectMaxAttempts = 10
	c.DialTimeout = 15 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if a config file is given) and command-line flags. Later
// sources take precedence.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseFlags(cfg)
	return cfg
}
