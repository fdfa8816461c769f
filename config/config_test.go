package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestLoadFromDefaults
func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Realtime.MaxReconnectAttempts)
	assert.Equal(t, 3*time.Second, cfg.Realtime.ReconnectInterval)
	assert.Equal(t, 20*time.Second, cfg.Realtime.ConnectTimeout)
	assert.Equal(t, "memory", cfg.Monitor.Store)
	assert.Equal(t, 20000, cfg.Monitor.EventLogCapacity)
}

// go test -v --run TestLoadFromFileAndEnv
func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := strings.Join([]string{
		"backend:",
		"  base_url: http://backend:8080",
		"  bypass_auth: true",
		"realtime:",
		"  url: ws://backend:8080/ws",
		"  reconnect_interval: 1s",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("BACKEND_TOKEN", "secret")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:8080", cfg.Backend.BaseURL)
	assert.True(t, cfg.Backend.BypassAuth)
	assert.Equal(t, "secret", cfg.Backend.Token)
	assert.Equal(t, time.Second, cfg.Realtime.ReconnectInterval)
}

// go test -v --run TestValidate
func TestValidate(t *testing.T) {
	cfg := Config{
		Backend:  BackendConfig{BaseURL: "http://x"},
		Realtime: RealtimeConfig{URL: "ws://x", MaxReconnectAttempts: 5},
		Monitor:  MonitorConfig{Store: "redis"},
	}
	assert.Error(t, cfg.Validate())

	cfg.Monitor.Store = "postgres"
	assert.NoError(t, cfg.Validate())

	cfg.Realtime.MaxReconnectAttempts = 0
	assert.ErrorContains(t, cfg.Validate(), "max_reconnect_attempts")
	cfg.Realtime.MaxReconnectAttempts = 5

	cfg.Realtime.URL = ""
	assert.Error(t, cfg.Validate())
}

// go test -v --run TestPostgresDSN
func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "p",
		DBName: "stocksim", SSLMode: "disable", TimeZone: "UTC",
	}
	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=stocksim sslmode=disable TimeZone=UTC",
		cfg.DSN("dev"))
	assert.Contains(t, cfg.AdminDSN(), "dbname=postgres")
}
