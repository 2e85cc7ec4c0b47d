package config

import (
	"os"
	"strconv"
)

// Config holds the core runtime configuration for the control plane.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	AdminUser     string
	AdminPassword string

	DatabaseURL string

	// ShardCount is the number of ingestion shards (collector processes)
	// available for tenant assignment. Each shard carries at most one tenant.
	ShardCount int

	// ProvisioningEnabled controls whether tenant storage (database, user,
	// grants, canonical tables) is materialized at signup. When false, team
	// creation skips provisioning entirely.
	ProvisioningEnabled bool

	// Admin endpoint of the analytical store, used only for DDL.
	ClickHouseHost     string
	ClickHouseUser     string
	ClickHousePassword string

	// Query endpoint recorded on managed connections. The emitted collector
	// configs do not embed it; collectors take their write endpoint from
	// their own environment.
	ClickHouseQueryHost string

	APIAddr   string
	OpAMPAddr string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		AdminUser:           getenv("APP_ADMIN_USER", "admin"),
		AdminPassword:       getenv("APP_ADMIN_PASSWORD", "changeme"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		ShardCount:          1,
		ProvisioningEnabled: os.Getenv("PROVISIONING_ENABLED") == "true",
		ClickHouseHost:      getenv("CLICKHOUSE_HOST", "localhost:9000"),
		ClickHouseUser:      getenv("CLICKHOUSE_USER", "default"),
		ClickHousePassword:  os.Getenv("CLICKHOUSE_PASSWORD"),
		ClickHouseQueryHost: getenv("CLICKHOUSE_QUERY_HOST", "localhost:8123"),
		APIAddr:             ":" + getenv("API_PORT", "8000"),
		OpAMPAddr:           ":" + getenv("OPAMP_PORT", "4320"),
	}

	if v := os.Getenv("SHARD_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ShardCount = n
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
