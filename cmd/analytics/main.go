// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search lifecycle and credit events from Kafka, aggregates them
// in memory (search totals, failure rate, credits spent, pipeline latency
// percentiles, per-stage averages, top queries), snapshots the totals to
// PostgreSQL on a cron schedule and exposes them over HTTP.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Analytics.Port, "topic", cfg.Kafka.Topics.SearchEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := aggregator.NewStore(db)
	agg := analytics.NewAggregator()
	if err := store.Restore(ctx, agg); err != nil {
		slog.Warn("restoring analytics totals failed, starting from zero", "error", err)
	}
	scheduler, err := store.Schedule(cfg.Analytics.SnapshotSchedule, agg)
	if err != nil {
		slog.Error("failed to schedule snapshots", "error", err)
		os.Exit(1)
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, analytics.HandleEvent(agg))
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "group", cfg.Kafka.ConsumerGroup)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db, false))
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		select {
		case <-consumerDone:
			return health.ComponentHealth{Status: health.StatusDown, Message: "consumer stopped"}
		default:
			return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
		}
	})

	mux := http.NewServeMux()
	analytics.NewHandler(agg, store).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-consumerDone
	scheduler.Stop()
	slog.Info("analytics service stopped")
}
