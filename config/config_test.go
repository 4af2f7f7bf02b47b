package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "momentum.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"), Default())
	require.NoError(t, err)
	assert.Equal(t, Default().Database.Path, cfg.Database.Path)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout.Duration)
}

func TestLoad_DecodesTOML(t *testing.T) {
	path := writeFile(t, `
[server]
port = 9090
read_timeout = "5s"
cors_origins = ["https://tracker.example.com"]

[database]
path = "/var/lib/momentum.db"

[log]
level = "debug"
format = "json"
`)
	cfg, err := Load(path, Default())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout.Duration)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout.Duration, "unset keys keep defaults")
	assert.Equal(t, []string{"https://tracker.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/var/lib/momentum.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9090", cfg.Addr())
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad toml", "[server\nport = 1"},
		{"bad duration", "[server]\nread_timeout = \"soon\""},
		{"bad port", "[server]\nport = 70000"},
		{"bad level", "[log]\nlevel = \"loud\""},
		{"bad format", "[log]\nformat = \"xml\""},
		{"empty db path", "[database]\npath = \"  \""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.content), Default())
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	env := map[string]string{
		"MOMENTUM_PORT":         "7000",
		"MOMENTUM_DB":           ":memory:",
		"MOMENTUM_LOG_LEVEL":    "warn",
		"MOMENTUM_LOG_FORMAT":   "json",
		"MOMENTUM_CORS_ORIGINS": "https://a.example.com, https://b.example.com,",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
}

func TestApplyEnv_BadPort(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "MOMENTUM_PORT" {
			return "eighty", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestLoad_EnvironmentBeatsFile(t *testing.T) {
	t.Setenv("MOMENTUM_PORT", "6060")
	cfg, err := Load(writeFile(t, "[server]\nport = 9090"), Default())
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.Port)
}
