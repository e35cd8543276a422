/*
main.go - Application entry point

PURPOSE:
  Starts the stock ledger HTTP server. Handles configuration, backend
  selection, state restore and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse flags (environment variables as defaults)
  2. Build the zap logger
  3. Open the store backend (memory, sqlite or redis)
  4. Restore persisted items into the catalog
  5. Attach the Kafka publisher if brokers are configured
  6. Start the HTTP server

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (-shutdown-timeout)
  3. Flush the Kafka writer, close the store
  4. Exit

EXAMPLES:
  # In-memory ledger on the client's default port
  ./server

  # SQLite-backed ledger
  ./server -store=sqlite -db=./data/ledger.db

  # Redis-backed ledger publishing events to Kafka
  ./server -store=redis -redis-addr=localhost:6379 -kafka-brokers=localhost:9092

SEE ALSO:
  - config.go: Flags and environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/stock-ledger/api"
	"github.com/warp/stock-ledger/events/kafka"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/ledger/store"
	"github.com/warp/stock-ledger/store/redis"
	"github.com/warp/stock-ledger/store/sqlite"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *Config, logger *zap.Logger) error {
	ctx := context.Background()

	backend, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore.Close()

	catalog := ledger.NewCatalog()
	proc := ledger.NewProcessor(catalog, backend)
	proc.Logger = logger.Named("ledger")

	restored, broken, err := proc.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore items: %w", err)
	}
	logger.Info("catalog restored",
		zap.String("store", cfg.Backend),
		zap.Int("items", restored),
		zap.Int("broken", broken))

	if len(cfg.KafkaBrokers) > 0 {
		pub := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger.Named("kafka"))
		defer pub.Close()
		proc.Publisher = pub
		logger.Info("publishing ledger events",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic))
	}

	handler := api.NewHandler(proc, ledger.NewQueryService(catalog, backend), logger.Named("http"))
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore returns the configured backend and a closer for it.
func openStore(ctx context.Context, cfg *Config) (ledger.Store, io.Closer, error) {
	switch cfg.Backend {
	case backendSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return s, s, nil
	case backendRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		return redis.New(client), client, nil
	default:
		return store.NewMemory(), nopCloser{}, nil
	}
}
