// Command migrate applies the embedded schema migrations and can seed demo
// candidates plus demo campaigns for the default account.
//
// Usage:
//
//	go run ./cmd/migrate [-config configs/development.yaml] [-down N] [-seed N]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/campaign"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/candidate"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/internal/migration"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	down := flag.Int("down", 0, "roll back N migrations instead of applying")
	seed := flag.Int("seed", 0, "insert N demo candidates and the demo campaigns after migrating")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if *down > 0 {
		if err := migration.Down(db.DB, *down); err != nil {
			slog.Error("rollback failed", "error", err)
			os.Exit(1)
		}
		slog.Info("rolled back migrations", "steps", *down)
		return
	}

	if err := migration.Up(db.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	if *seed > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		repo := candidate.NewPostgresRepository(db)
		ids := make([]int64, 0, *seed)
		for i, p := range candidate.DemoProfiles(*seed) {
			id, err := repo.Insert(ctx, p)
			if err != nil {
				slog.Error("seeding failed", "inserted", i, "error", err)
				os.Exit(1)
			}
			ids = append(ids, id)
		}
		slog.Info("seeded demo candidates", "count", *seed)

		campaigns := campaign.NewPostgresStore(db)
		for _, d := range campaign.DemoCampaigns(ids, time.Now().UTC()) {
			if _, err := campaigns.Insert(ctx, cfg.Search.DefaultAccountID, d); err != nil {
				if errors.Is(err, apperrors.ErrConflict) {
					slog.Info("demo campaign already present", "name", d.Name)
					continue
				}
				slog.Error("seeding campaigns failed", "name", d.Name, "error", err)
				os.Exit(1)
			}
		}
		slog.Info("seeded demo campaigns", "account_id", cfg.Search.DefaultAccountID)
	}
}
