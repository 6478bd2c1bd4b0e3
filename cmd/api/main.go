// Command api starts the recruiting API: candidate browsing, paid contact
// unlocks, the credit ledger, outreach campaigns and asynchronous multi-stage
// searches.
//
// Lifecycle events go to Kafka when kafka.enabled is set; otherwise they are
// aggregated in process and served at GET /api/v1/analytics/stats.
//
// Usage:
//
//	go run ./cmd/api [-config configs/development.yaml] [-memory]
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

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/api/router"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/campaign"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/candidate"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/migration"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/search"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

const demoCandidates = 30

// stores bundles the persistence backends chosen at startup.
type stores struct {
	ledger     ledger.Store
	searches   search.Store
	candidates candidate.Repository
	campaigns  campaign.Store
	snapshots  *aggregator.Store
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	memory := flag.Bool("memory", false, "use in-memory stores seeded with demo candidates")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting api service",
		"port", cfg.Server.Port,
		"memory", *memory,
		"kafka", cfg.Kafka.Enabled,
		"redis", cfg.Redis.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(sctx)
		}()
	}

	checker := health.NewChecker()

	var st stores
	if *memory {
		st = memoryStores(cfg.Search.DefaultAccountID)
		slog.Info("using in-memory stores", "candidates", demoCandidates)
	} else {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("connected to postgres", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)

		if cfg.Server.AutoMigrate {
			if err := migration.Up(db.DB); err != nil {
				slog.Error("failed to apply migrations", "error", err)
				os.Exit(1)
			}
		}
		checker.Register("postgres", health.PingCheck(db, true))
		st = stores{
			ledger:     ledger.NewPostgresStore(db),
			searches:   search.NewPostgresStore(db),
			candidates: candidate.NewPostgresRepository(db),
			campaigns:  campaign.NewPostgresStore(db),
			snapshots:  aggregator.NewStore(db),
		}
	}

	// Analytics: Kafka when enabled, otherwise aggregate in process.
	var (
		sink       analytics.Sink
		collector  *analytics.Collector
		producer   *kafka.Producer
		statsAgg   *analytics.Aggregator
		statsH     *analytics.Handler
		snapshotSc *aggregator.Scheduler
	)
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		collector = analytics.NewCollector(producer, analytics.CollectorConfig{BufferSize: cfg.Analytics.BufferSize}, m)
		collector.Start()
		sink = collector
		slog.Info("publishing lifecycle events", "topic", cfg.Kafka.Topics.SearchEvents)
	} else {
		statsAgg = analytics.NewAggregator()
		sink = statsAgg
		var lister analytics.SnapshotLister
		if st.snapshots != nil {
			if err := st.snapshots.Restore(ctx, statsAgg); err != nil {
				slog.Warn("restoring analytics totals failed", "error", err)
			}
			snapshotSc, err = st.snapshots.Schedule(cfg.Analytics.SnapshotSchedule, statsAgg)
			if err != nil {
				slog.Error("failed to schedule analytics snapshots", "error", err)
				os.Exit(1)
			}
			lister = st.snapshots
		}
		statsH = analytics.NewHandler(statsAgg, lister)
	}

	// Results cache.
	serviceOpts := []candidate.ServiceOption{candidate.WithEvents(sink)}
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, results caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			serviceOpts = append(serviceOpts, candidate.WithCache(candidate.NewResultsCache(redisClient, cfg.Redis.CacheTTL, m)))
			checker.Register("redis", health.PingCheck(redisClient, false))
			slog.Info("results cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	l := ledger.New(st.ledger, cfg.Credits.DefaultBalance, ledger.WithMetrics(m), ledger.WithEvents(sink))
	candidates := candidate.NewService(st.candidates, l, cfg.Credits.UnlockCost, serviceOpts...)

	runner := search.NewRunner(st.searches, search.RunnerConfig{
		StageMin:      cfg.Search.StageMinDuration,
		StageMax:      cfg.Search.StageMaxDuration,
		MaxConcurrent: int64(cfg.Search.MaxConcurrentPipelines),
		ResultCount:   cfg.Search.ResultCount,
	},
		search.WithCounter(candidates),
		search.WithRunnerMetrics(m),
		search.WithRunnerEvents(sink),
	)
	orch := search.NewOrchestrator(l, st.searches, runner, candidates, cfg.Credits.SearchCost,
		search.WithMetrics(m),
		search.WithEvents(sink),
	)

	watchdog := search.NewWatchdog(st.searches, cfg.Search.StuckThreshold, cfg.Search.StuckCheckSchedule, m)
	if err := watchdog.Start(); err != nil {
		slog.Error("failed to start stuck-search watchdog", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(cfg.RateLimit.SearchPerMinute, time.Minute)
	go limiter.RunJanitor(ctx, 5*time.Minute)

	h := handler.New(handler.Config{
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
	}, orch, candidates, campaign.NewService(st.campaigns), l)

	chain := router.New(h, router.Options{
		DefaultAccountID: cfg.Search.DefaultAccountID,
		CORSOrigin:       cfg.Server.CORSOrigin,
		RequestTimeout:   cfg.Server.RequestTimeout,
		SearchLimiter:    limiter,
		Metrics:          m,
		Health:           checker,
		Analytics:        statsH,
	})

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

	slog.Info("api service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// In-flight pipelines get the shutdown budget; the rest are marked failed.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := runner.Shutdown(drainCtx); err != nil {
		slog.Warn("search pipelines cancelled at shutdown", "error", err)
	}
	<-watchdog.Stop().Done()

	if collector != nil {
		if err := collector.Close(drainCtx); err != nil {
			slog.Warn("analytics buffer not fully flushed", "error", err)
		}
		if err := producer.Close(); err != nil {
			slog.Error("closing kafka producer", "error", err)
		}
	}
	if snapshotSc != nil {
		snapshotSc.Stop()
	}

	slog.Info("api service stopped")
}

// memoryStores seeds demo candidates and gives accountID the demo campaigns.
func memoryStores(accountID int64) stores {
	repo := candidate.NewMemoryRepository()
	ids := make([]int64, 0, demoCandidates)
	for _, p := range candidate.DemoProfiles(demoCandidates) {
		ids = append(ids, repo.Add(p))
	}
	campaigns := campaign.NewMemoryStore()
	for _, d := range campaign.DemoCampaigns(ids, time.Now().UTC()) {
		if _, err := campaigns.Insert(context.Background(), accountID, d); err != nil {
			slog.Warn("skipping demo campaign", "name", d.Name, "error", err)
		}
	}
	return stores{
		ledger:     ledger.NewMemoryStore(),
		searches:   search.NewMemoryStore(),
		candidates: repo,
		campaigns:  campaigns,
	}
}
