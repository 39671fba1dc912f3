package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Template renders cfg as a TOML document that Load accepts. Durations are
// written in time.Duration string form ("15s").
func Template(cfg Config) ([]byte, error) {
	doc := map[string]map[string]any{
		"server": {
			"addr":             cfg.Server.Addr,
			"read_timeout":     cfg.Server.ReadTimeout.String(),
			"write_timeout":    cfg.Server.WriteTimeout.String(),
			"idle_timeout":     cfg.Server.IdleTimeout.String(),
			"shutdown_timeout": cfg.Server.ShutdownTimeout.String(),
		},
		"websocket": {
			"allowed_origins":  cfg.WebSocket.AllowedOrigins,
			"max_message_size": cfg.WebSocket.MaxMessageSize,
			"send_buffer":      cfg.WebSocket.SendBuffer,
			"ping_interval":    cfg.WebSocket.PingInterval.String(),
			"pong_wait":        cfg.WebSocket.PongWait.String(),
			"write_wait":       cfg.WebSocket.WriteWait.String(),
		},
		"rate_limit": {
			"burst":           cfg.RateLimit.Burst,
			"refill_interval": cfg.RateLimit.RefillInterval.String(),
		},
		"log": {
			"level":  cfg.Log.Level,
			"format": cfg.Log.Format,
		},
		"metrics": {
			"enabled": cfg.Metrics.Enabled,
			"path":    cfg.Metrics.Path,
		},
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("config: encode template: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteTemplate writes the default configuration to path. An existing file
// is only replaced when overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}

	data, err := Template(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
