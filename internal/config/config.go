// Package config loads process configuration from the environment.
//
// A .env file in the working directory is honored when present. Pool
// durations are expressed in milliseconds, matching the documented
// configuration surface.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fleetdock/fleetdock/internal/pool"
)

type Config struct {
	// Server
	Port      int
	Env       string
	Version   string
	LogLevel  string
	LogFormat string
	APIToken  string

	// CORS
	CORSAllowedOrigins []string

	// Redis (Asynq task queue)
	RedisAddr string

	// Fleet
	InventoryPath  string
	KnownHostsPath string
	DockerHost     string

	// Execution
	CommandTimeout time.Duration

	// Pool
	Pool pool.Config

	// Compose discovery cache
	CacheDir string
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnvAsInt("PORT", 8080),
		Env:                getEnv("ENV", "development"),
		Version:            getEnv("VERSION", "0.1.0"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		APIToken:           getEnv("FLEETDOCK_API_TOKEN", ""),
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		InventoryPath:      getEnv("FLEETDOCK_INVENTORY", "fleet.toml"),
		KnownHostsPath:     getEnv("FLEETDOCK_KNOWN_HOSTS", ""),
		DockerHost:         getEnv("DOCKER_HOST", "unix:///var/run/docker.sock"),
		CommandTimeout:     getEnvAsMillis("FLEETDOCK_COMMAND_TIMEOUT_MS", 30000),
		Pool:               PoolFromEnv(),
		CacheDir:           getEnv("FLEETDOCK_CACHE_DIR", ".fleetdock-cache"),
		CacheTTL:           getEnvAsMillis("FLEETDOCK_CACHE_TTL_MS", 60000),
	}

	return cfg, nil
}

// PoolFromEnv reads the pool configuration keys, falling back to the pool
// package defaults.
func PoolFromEnv() pool.Config {
	def := pool.DefaultConfig()
	return pool.Config{
		MaxConnections:      getEnvAsInt("FLEETDOCK_POOL_MAX_CONNECTIONS", def.MaxConnections),
		IdleTimeout:         getEnvAsMillis("FLEETDOCK_POOL_IDLE_TIMEOUT_MS", int(def.IdleTimeout/time.Millisecond)),
		ConnectTimeout:      getEnvAsMillis("FLEETDOCK_POOL_CONNECT_TIMEOUT_MS", int(def.ConnectTimeout/time.Millisecond)),
		HealthChecks:        getEnvAsBool("FLEETDOCK_POOL_HEALTH_CHECKS", def.HealthChecks),
		HealthCheckInterval: getEnvAsMillis("FLEETDOCK_POOL_HEALTH_CHECK_INTERVAL_MS", int(def.HealthCheckInterval/time.Millisecond)),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultMillis)) * time.Millisecond
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
