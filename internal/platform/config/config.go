// Package config builds runtime configuration from the environment so main
// stays lean. All variables are prefixed FENCEWATCH_ and have defaults that
// boot a fully in-memory engine.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures everything the server wires at startup. Empty connection
// strings mean the corresponding backend is not configured and an in-memory
// implementation is used instead.
type Config struct {
	OpsAddr  string
	LogLevel string

	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	AMQPURL     string
	RedisURL    string
	PostgresDSN string

	CatalogCacheTTL time.Duration

	StateTTL        time.Duration
	StateSweepEvery time.Duration
	MaxTrackedUsers int

	PerUserQueueDepth int
}

// Load reads an optional .env file then builds the config from the
// environment. A missing .env is not an error.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		OpsAddr:  envStr("FENCEWATCH_OPS_ADDR", ":9090"),
		LogLevel: envStr("FENCEWATCH_LOG_LEVEL", "info"),

		MQTTBroker:   envStr("FENCEWATCH_MQTT_BROKER", ""),
		MQTTClientID: envStr("FENCEWATCH_MQTT_CLIENT_ID", "fencewatch"),
		MQTTTopic:    envStr("FENCEWATCH_MQTT_TOPIC", "fleet/users/+/location"),

		AMQPURL:     envStr("FENCEWATCH_AMQP_URL", ""),
		RedisURL:    envStr("FENCEWATCH_REDIS_URL", ""),
		PostgresDSN: envStr("FENCEWATCH_POSTGRES_DSN", ""),

		CatalogCacheTTL: envDuration("FENCEWATCH_CATALOG_CACHE_TTL", 30*time.Second),

		StateTTL:        envDuration("FENCEWATCH_STATE_TTL", 24*time.Hour),
		StateSweepEvery: envDuration("FENCEWATCH_STATE_SWEEP_EVERY", time.Minute),
		MaxTrackedUsers: envInt("FENCEWATCH_MAX_TRACKED_USERS", 100_000),

		PerUserQueueDepth: envInt("FENCEWATCH_USER_QUEUE_DEPTH", 64),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
