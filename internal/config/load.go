package config

import (
	"fmt"
	"os"

	"github.com/titanous/json5"
)

// Load reads config from a JSON(5) file, then overlays env vars. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values; secrets exist only here.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("MASQUEBOT_TOKEN", &c.Father.Token)
	envStr("MASQUEBOT_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("MASQUEBOT_MODE", &c.Mode)
	envStr("MASQUEBOT_SQLITE_PATH", &c.Database.SQLitePath)
	envStr("MASQUEBOT_LOG_LEVEL", &c.LogLevel)
}
