package postgres_test

import (
	"os"
	"testing"

	"stocksim/config"
	"stocksim/pkg/storage/postgres"

	"github.com/stretchr/testify/require"
)

// go test -v --run TestCreateDatabase
func TestCreateDatabase(t *testing.T) {
	if os.Getenv("STOCKSIM_TEST_DSN") == "" {
		t.Skip("STOCKSIM_TEST_DSN not set")
	}

	cfg := config.PostgresConfig{
		Host:     envOr("STOCKSIM_TEST_PGHOST", "localhost"),
		Port:     5432,
		User:     envOr("STOCKSIM_TEST_PGUSER", "postgres"),
		Password: os.Getenv("STOCKSIM_TEST_PGPASSWORD"),
		DBName:   "stocksim_test_events",
		SSLMode:  "disable",
	}

	require.NoError(t, postgres.CreateDatabase(cfg))
	// second call sees the existing database
	require.NoError(t, postgres.CreateDatabase(cfg))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
