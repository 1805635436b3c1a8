// Command indexer consumes document events from Kafka, applies them to the
// sharded trie index and periodically snapshots every shard to disk.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("indexer", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "num_shards", cfg.Index.Shards, "data_dir", cfg.Index.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()

	var db *sql.DB
	if cfg.Postgres.Enabled {
		pg, err := resilience.Do(ctx, "postgres connect", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func() (*postgres.Client, error) {
			return postgres.New(cfg.Postgres)
		})
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		db = pg.DB
		slog.Info("document status tracking enabled")
	}

	router, err := shard.NewRouter(cfg.Index, m)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}
	defer router.Close()

	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		pending := 0
		for _, s := range router.Stats() {
			pending += s.PendingRemovals
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d shards, %d pending removals", router.NumShards(), pending),
		}
	})
	if db != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := db.PingContext(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
			"GET /health/live":  checker.LiveHandler(),
			"GET /health/ready": checker.ReadyHandler(),
		})
		defer shutdownMetrics(context.Background())
	}

	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentEvents,
		consumer.HandleMessage(router, db, m),
		kafka.WithCheckpoint(cfg.Index.SnapshotInterval, router.FlushAll),
	)
	indexConsumer := consumer.New(kafkaConsumer)

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentEvents,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing all shards before shutdown")
	if err := router.FlushAll(); err != nil {
		slog.Error("final flush failed", "error", err)
	}

	slog.Info("indexer service stopped")
}
