// Command ingestion starts the document ingestion HTTP service.
//
// Documents are validated against the configured index fields and published
// as index, replace or remove events to Kafka for the indexer. When
// PostgreSQL is enabled each event is also recorded as PENDING.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/trie-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trie-search/pkg/middleware"
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
	logger.Setup("ingestion", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		db, err = resilience.Do(ctx, "postgres connect", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func() (*postgres.Client, error) {
			return postgres.New(cfg.Postgres)
		})
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to postgres")
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentEvents)

	h := handler.New(publisher.New(db, producer), cfg.Index.Fields)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Index)
	mux.HandleFunc("PUT /api/v1/documents/{id}", h.Replace)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Remove)
	mux.HandleFunc("GET /health", h.Health)

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
