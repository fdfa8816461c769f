package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Backend  BackendConfig  `mapstructure:"backend"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Status   StatusConfig   `mapstructure:"status"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// BackendConfig describes the REST backend.
type BackendConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Token      string        `mapstructure:"token"`
	BypassAuth bool          `mapstructure:"bypass_auth"` // dev only: never send a bearer token
}

// RealtimeConfig describes the push channel.
type RealtimeConfig struct {
	URL                  string        `mapstructure:"url"`         // websocket endpoint
	PollingURL           string        `mapstructure:"polling_url"` // long-polling fallback, optional
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
}

type MonitorConfig struct {
	HeartbeatSchedule string        `mapstructure:"heartbeat_schedule"` // cron spec, e.g. "@every 30s"
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	EventLogCapacity  int           `mapstructure:"event_log_capacity"` // hard limit; age keeps the last 24h
	Store             string        `mapstructure:"store"` // "memory" or "postgres"
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the status server
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml next to the binary and overrides with environment variables.
func Load() *Config {
	ex, _ := os.Executable()
	dir := filepath.Join(filepath.Dir(ex), "../config")
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		dir = filepath.Join(pwd, "../../config")
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom reads config.yaml from dir. A missing file is not an error;
// defaults and environment variables still apply.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}

	v := viper.New()
	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	setDefaults(v)

	// Support environment variables with dot notation (e.g., REALTIME_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:3000")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.bypass_auth", false)

	v.SetDefault("realtime.url", "ws://localhost:3000/ws")
	v.SetDefault("realtime.polling_url", "")
	v.SetDefault("realtime.connect_timeout", 20*time.Second)
	v.SetDefault("realtime.reconnect_interval", 3*time.Second)
	v.SetDefault("realtime.max_reconnect_attempts", 5)
	v.SetDefault("realtime.ping_interval", 25*time.Second)

	v.SetDefault("monitor.heartbeat_schedule", "@every 30s")
	v.SetDefault("monitor.heartbeat_timeout", 5*time.Second)
	v.SetDefault("monitor.event_log_capacity", 20000)
	v.SetDefault("monitor.store", "memory")

	v.SetDefault("status.addr", ":9464")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")
	v.SetDefault("log.output_file", "")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "stocksim")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	if c.Realtime.URL == "" && c.Realtime.PollingURL == "" {
		return fmt.Errorf("realtime: url or polling_url is required")
	}
	if c.Realtime.MaxReconnectAttempts < 1 {
		return fmt.Errorf("realtime: max_reconnect_attempts must be >= 1")
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend: base_url is required")
	}
	switch c.Monitor.Store {
	case "memory", "postgres":
	default:
		return fmt.Errorf("monitor: unknown store %q", c.Monitor.Store)
	}
	return nil
}
