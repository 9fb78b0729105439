package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment.
type Config struct {
	Addr string

	Redis    RedisConfig
	Kafka    KafkaConfig
	Postgres PostgresConfig

	// RequestTimeout bounds every external call issued on behalf of one
	// HTTP request (store, queue).
	RequestTimeout time.Duration
}

// RedisConfig configures the primary key-value store client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the propagation queue.
type KafkaConfig struct {
	Brokers []string
	Group   string
}

// PostgresConfig configures the search-index backend.
type PostgresConfig struct {
	DSN string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("PLANHUB_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	// Backends are opt-in: an empty URL, broker list, or DSN means the
	// in-process stand-in is used instead.
	redisURL := os.Getenv("REDIS_URL")

	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "planhub-indexer"
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = strings.Split(v, ",")
	}

	dsn := os.Getenv("POSTGRES_DSN")

	return Config{
		Addr: addr,
		Redis: RedisConfig{
			URL:          redisURL,
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: brokers,
			Group:   group,
		},
		Postgres:       PostgresConfig{DSN: dsn},
		RequestTimeout: envDuration("REQUEST_TIMEOUT", 10*time.Second),
	}
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
