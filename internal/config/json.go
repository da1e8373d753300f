package config

import (
	"encoding/json"
	"os"

	"github.com/dpavlenko/marksync/internal/flagx"
	"github.com/dpavlenko/marksync/internal/timex"
)

// jsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// accept either strings like "5s" or integer nanoseconds.
type jsonConfig struct {
	ChannelURL           *string         `json:"channel_url"`
	Origin               *string         `json:"origin"`
	EventDBPath          *string         `json:"event_db_path"`
	KVPath               *string         `json:"kv_path"`
	VaultEnabled         *bool           `json:"vault_enabled"`
	SendTimeout          *timex.Duration `json:"send_timeout"`
	ReconnectInitial     *timex.Duration `json:"reconnect_initial"`
	ReconnectMax         *timex.Duration `json:"reconnect_max"`
	ReconnectMultiplier  *float64        `json:"reconnect_multiplier"`
	ReconnectMaxAttempts *uint64         `json:"reconnect_max_attempts"`
	DialTimeout          *timex.Duration `json:"dial_timeout"`
}

// parseJSON overlays cfg with values from the JSON file named by -c/-config.
// Absent file means no overlay; unreadable or malformed files panic, since
// a half-applied config is worse than a crash at startup.
func parseJSON(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ChannelURL != nil {
		cfg.ChannelURL = *jc.ChannelURL
	}
	if jc.Origin != nil {
		cfg.Origin = *jc.Origin
	}
	if jc.EventDBPath != nil {
		cfg.EventDBPath = *jc.EventDBPath
	}
	if jc.KVPath != nil {
		cfg.KVPath = *jc.KVPath
	}
	if jc.VaultEnabled != nil {
		cfg.VaultEnabled = *jc.VaultEnabled
	}
	if jc.SendTimeout != nil {
		cfg.SendTimeout = jc.SendTimeout.Duration
	}
	if jc.ReconnectInitial != nil {
		cfg.ReconnectInitial = jc.ReconnectInitial.Duration
	}
	if jc.ReconnectMax != nil {
		cfg.ReconnectMax = jc.ReconnectMax.Duration
	}
	if jc.ReconnectMultiplier != nil {
		cfg.ReconnectMultiplier = *jc.ReconnectMultiplier
	}
	if jc.ReconnectMaxAttempts != nil {
		cfg.ReconnectMaxAttempts = *jc.ReconnectMaxAttempts
	}
	if jc.DialTimeout != nil {
		cfg.DialTimeout = jc.DialTimeout.Duration
	}
}
