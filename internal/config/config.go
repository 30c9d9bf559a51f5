// Package config loads the masquebot configuration file. Secrets (the
// father bot token, the Postgres DSN) never live in the file; they are
// taken from the environment on load.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/masquebot/masquebot/internal/store/sqldb"
)

// Modes select the storage backend.
const (
	ModeStandalone = "standalone" // sqlite, single file
	ModeManaged    = "managed"    // postgres
)

type Config struct {
	// Mode is "standalone" (default) or "managed".
	Mode     string         `json:"mode"`
	LogLevel string         `json:"log_level"`
	Database DatabaseConfig `json:"database"`
	Father   FatherConfig   `json:"father"`
	Fabric   FabricConfig   `json:"fabric"`
}

type DatabaseConfig struct {
	SQLitePath string `json:"sqlite_path"`
	// PostgresDSN comes from MASQUEBOT_POSTGRES_DSN only.
	PostgresDSN string `json:"-"`
}

type FatherConfig struct {
	// Token comes from MASQUEBOT_TOKEN only.
	Token       string `json:"-"`
	AdminTGID   int64  `json:"admin_tgid"`
	RequireCode bool   `json:"require_code"`
}

type FabricConfig struct {
	// OpTimeout bounds command waiters on fan-out operations.
	OpTimeout Duration `json:"op_timeout"`
	// MaskTTL is how long an idle mask holding stays reserved.
	MaskTTL Duration `json:"mask_ttl"`
	// Masks overrides the built-in emoji universe.
	Masks []string `json:"masks"`
	// MessagesPerSecond is the per-bot outbound rate cap.
	MessagesPerSecond float64 `json:"messages_per_second"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Mode:     ModeStandalone,
		LogLevel: "info",
		Database: DatabaseConfig{
			SQLitePath: "masquebot.db",
		},
		Father: FatherConfig{
			RequireCode: true,
		},
		Fabric: FabricConfig{
			OpTimeout:         Duration(120 * time.Second),
			MaskTTL:           Duration(24 * time.Hour),
			MessagesPerSecond: 25,
		},
	}
}

// DriverDSN maps the mode to an sqldb driver and DSN.
func (c *Config) DriverDSN() (driver, dsn string, err error) {
	switch c.Mode {
	case ModeStandalone:
		return sqldb.DriverSQLite, c.Database.SQLitePath, nil
	case ModeManaged:
		if c.Database.PostgresDSN == "" {
			return "", "", fmt.Errorf("managed mode requires MASQUEBOT_POSTGRES_DSN")
		}
		return sqldb.DriverPostgres, c.Database.PostgresDSN, nil
	default:
		return "", "", fmt.Errorf("unknown mode %q", c.Mode)
	}
}

// Validate checks the parts every run needs.
func (c *Config) Validate() error {
	if c.Father.Token == "" {
		return fmt.Errorf("MASQUEBOT_TOKEN environment variable is not set")
	}
	if _, _, err := c.DriverDSN(); err != nil {
		return err
	}
	return nil
}

// Duration is a time.Duration that unmarshals from either a number of
// seconds or a string like "120s".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value) * time.Second)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration { return time.Duration(d) }
