package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	backendMemory = "memory"
	backendSQLite = "sqlite"
	backendRedis  = "redis"
)

// Config holds all runtime settings. Every flag falls back to an
// environment variable, then to a default.
type Config struct {
	Addr            string
	Backend         string
	SQLitePath      string
	RedisAddr       string
	KafkaBrokers    []string
	KafkaTopic      string
	CORSOrigins     []string
	LogLevel        string
	DevLog          bool
	ShutdownTimeout time.Duration
}

func parseConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	cfg := &Config{}
	var brokers, origins string
	fs.StringVar(&cfg.Addr, "addr", getEnv("ADDR", ":8002"), "HTTP listen address")
	fs.StringVar(&cfg.Backend, "store", getEnv("STORE_BACKEND", backendMemory), "store backend: memory, sqlite or redis")
	fs.StringVar(&cfg.SQLitePath, "db", getEnv("SQLITE_PATH", "ledger.db"), "SQLite database path (\":memory:\" for in-memory)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis address")
	fs.StringVar(&brokers, "kafka-brokers", getEnv("KAFKA_BROKERS", ""), "comma-separated Kafka brokers; empty disables publishing")
	fs.StringVar(&cfg.KafkaTopic, "kafka-topic", getEnv("KAFKA_TOPIC", "stock-ledger-events"), "Kafka topic for ledger events")
	fs.StringVar(&origins, "cors-origins", getEnv("CORS_ORIGINS", "*"), "comma-separated allowed CORS origins; empty disables CORS")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.DevLog, "dev-log", os.Getenv("DEV_LOG") == "true", "human-readable development logging")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.KafkaBrokers = splitList(brokers)
	cfg.CORSOrigins = splitList(origins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Backend {
	case backendMemory, backendRedis:
	case backendSQLite:
		if c.SQLitePath == "" {
			return errors.New("-db is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Backend)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("-kafka-topic is required when brokers are set")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

func newLogger(cfg *Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.DevLog {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
