/*
Package config loads server settings.

ORDER (later wins):
  1. Default()
  2. TOML file passed to Load (missing file = defaults)
  3. .env in the working directory (never overrides variables already set)
  4. MOMENTUM_* environment variables
  5. CLI flags, applied by cmd/server

EXAMPLE momentum.toml:
  [server]
  port = 8080
  read_timeout = "15s"
  cors_origins = ["http://localhost:5173"]

  [database]
  path = "./data/momentum.db"

  [log]
  level = "info"
  format = "console"
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Port         int      `toml:"port"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	IdleTimeout  Duration `toml:"idle_timeout"`
	CORSOrigins  []string `toml:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // trace | debug | info | warn | error
	Format string `toml:"format"` // console | json
}

// Duration decodes TOML strings such as "15s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  Duration{15 * time.Second},
			WriteTimeout: Duration{15 * time.Second},
			IdleTimeout:  Duration{60 * time.Second},
			CORSOrigins:  []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Path: "./data/momentum.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load applies the TOML file, .env and environment on top of defaults and
// validates the result.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults

	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		case len(content) > 0:
			if err := toml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode toml: %w", err)
			}
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("MOMENTUM_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MOMENTUM_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("MOMENTUM_DB"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup("MOMENTUM_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("MOMENTUM_LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup("MOMENTUM_CORS_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSOrigins = origins
	}
	return nil
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout.Duration < 0 || c.Server.WriteTimeout.Duration < 0 || c.Server.IdleTimeout.Duration < 0 {
		return errors.New("server timeouts must be >= 0")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
