package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fillmorejl/async-transaction-engine/internal/config"
	"github.com/fillmorejl/async-transaction-engine/internal/engine"
	"github.com/fillmorejl/async-transaction-engine/internal/ops"
	"github.com/fillmorejl/async-transaction-engine/internal/registry"
	"github.com/fillmorejl/async-transaction-engine/internal/source"
	"github.com/fillmorejl/async-transaction-engine/internal/storage"
	"github.com/fillmorejl/async-transaction-engine/libs/health"
	"github.com/fillmorejl/async-transaction-engine/libs/kafka"
	"github.com/fillmorejl/async-transaction-engine/libs/logging"
	"github.com/fillmorejl/async-transaction-engine/libs/metrics"
	"github.com/fillmorejl/async-transaction-engine/libs/trace"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"log/slog"
)

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: engine <input.csv> [log-level] > <output.csv>")
		fmt.Fprintln(os.Stderr, "Available log levels: error, warn, info, debug, trace (default: error)")
		os.Exit(1)
	}
	inputPath := args[0]

	cfg, err := config.Load(os.Getenv("TXE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if len(args) > 1 {
		if !logging.Valid(args[1]) {
			fmt.Fprintf(os.Stderr, "Invalid log level '%s', defaulting to 'error'\n", args[1])
			cfg.LogLevel = "error"
		} else {
			cfg.LogLevel = args[1]
		}
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.ServiceName, cfg.Env)

	shutdownTracer, err := trace.InitTracer(cfg.ServiceName, cfg.Env)
	if err != nil {
		logger.Error("tracer init failed", "error", err)
	} else {
		defer func() {
			_ = shutdownTracer(context.Background())
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promRegistry := metrics.NewRegistry()
	engineMetrics := engine.NewMetrics(promRegistry)
	ready := health.NewManager(false)

	var opsServer *ops.Server
	if cfg.Ops.HTTPAddr != "" {
		opsServer = ops.New(cfg.Ops.HTTPAddr, ready, promRegistry, logger)
		opsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = opsServer.Shutdown(shutdownCtx)
		}()
	}

	store, cleanupStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanupStore()

	src, cleanupSource, err := buildSource(cfg, inputPath, logger, engineMetrics)
	if err != nil {
		logger.Error("source init failed", "error", err)
		os.Exit(1)
	}
	defer cleanupSource()

	reg := registry.New(context.WithoutCancel(ctx), registry.Config{
		MaxCapacity:   cfg.Registry.MaxCapacity,
		IdleTimeout:   cfg.Registry.IdleTimeout,
		InboxCapacity: cfg.Registry.InboxCapacity,
	}, store, logger, engineMetrics, engineMetrics)

	eng := engine.New(store, reg, cfg.ChannelCapacity, logger, engineMetrics)

	ready.SetReady(true)
	start := time.Now()
	if err := eng.Run(ctx, src, os.Stdout); err != nil {
		logger.Error("pipeline failed", "error", err)
		os.Exit(1)
	}
	logger.Info("pipeline completed", "duration", time.Since(start).String())
}

func buildStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return storage.NewMemoryStore(), func() {}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		store := storage.WithRetry(
			storage.NewRedisStore(client, cfg.Store.Redis.KeyPrefix),
			cfg.Store.RetryAttempts, cfg.Store.RetryBackoff, logger,
		)
		return store, func() { _ = client.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		pg := storage.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		store := storage.WithRetry(pg, cfg.Store.RetryAttempts, cfg.Store.RetryBackoff, logger)
		return store, pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func buildSource(cfg *config.AppConfig, inputPath string, logger *slog.Logger, observer source.IngestObserver) (source.Source, func(), error) {
	switch cfg.Source.Backend {
	case "csv":
		return source.NewCSVSource(inputPath, logger, observer), func() {}, nil

	case "kafka":
		consumer, err := kafka.NewConsumer(cfg.Source.Kafka.Brokers, cfg.Source.Kafka.ConsumerGroup, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("consuming from kafka, input path ignored", "topic", cfg.Source.Kafka.Topic)
		src := source.NewKafkaSource(consumer, []string{cfg.Source.Kafka.Topic}, logger, observer)
		return src, func() { _ = consumer.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown source backend %q", cfg.Source.Backend)
}
