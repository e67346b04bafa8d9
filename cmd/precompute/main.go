package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/railconnect/route-finder/internal/config"
	"github.com/railconnect/route-finder/internal/database"
	"github.com/railconnect/route-finder/internal/services"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	topStations := flag.Int("stations", cfg.Precompute.TopStations, "Number of busiest stations to pair up")
	topK := flag.Int("top", cfg.Precompute.TopK, "Routes stored per station pair")
	flag.Parse()

	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Cancel the run on interrupt; pairs stored so far are kept
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	routeCacheRepo := database.NewRouteCacheRepository(db.DB)
	if err := routeCacheRepo.EnsureTable(ctx); err != nil {
		logger.Fatalf("Failed to prepare route cache: %v", err)
	}

	timetableRepo := database.NewTimetableRepository(db.DB)
	precompute := services.NewPrecomputeService(
		services.NewRouteEngine(timetableRepo, cfg.Search.MaxCandidates, logger),
		timetableRepo,
		routeCacheRepo,
		services.PrecomputeConfig{
			CanonicalDate: cfg.Cache.CanonicalDate,
			TopStations:   *topStations,
			TopK:          *topK,
		},
		logger,
	)

	summary, err := precompute.Run(ctx)
	if err != nil {
		logger.Fatalf("Route precompute failed: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"run_id":   summary.RunID,
		"stations": summary.Stations,
		"pairs":    summary.Pairs,
		"stored":   summary.Stored,
		"failed":   summary.Failed,
	}).Info("Route cache populated")
}
