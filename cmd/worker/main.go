package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/config"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/extraction"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
	embstore "github.com/Dushime20/urutibiz-backend-sub011/pkg/repository/embedding"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/repository/images"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/resilience"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	once := flag.Bool("once", false, "run a single backfill cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := observability.NewStandardLogger("similarity-worker")
	metrics := observability.NewPrometheusMetrics("urutibiz_worker")
	defer func() {
		_ = metrics.Close()
	}()

	db, err := sqlx.Connect("postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	store, err := embstore.NewPostgresStore(db, cfg.Database.ScanCap, logger.WithPrefix("store"))
	if err != nil {
		return err
	}

	service, err := extraction.NewServiceExtractor(cfg.Extraction.Service, logger.WithPrefix("extraction"), metrics)
	if err != nil {
		return err
	}
	local := extraction.NewLocalModelExtractor(cfg.Extraction.LocalModelPath, logger.WithPrefix("extraction"))
	chain := extraction.NewChain(logger.WithPrefix("extraction"), service, local, extraction.NewSignalExtractor())

	monitor := extraction.NewHealthMonitor(service, cfg.Extraction.Service.HealthInterval, logger.WithPrefix("health-monitor"), metrics)

	limiters := resilience.NewRateLimiterManager(map[string]resilience.RateLimiterConfig{
		worker.RateLimiterWorker: cfg.Extraction.WorkerRateLimit,
	}, cfg.Extraction.WorkerRateLimit)

	catalog := images.NewPostgresImages(db, logger.WithPrefix("images"))
	precompute := worker.NewPrecomputeWorker(cfg.Worker, store, chain, service, catalog, limiters, logger.WithPrefix("precompute"), metrics)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	monitor.Start(ctx)

	if *once {
		return precompute.RunOnce(ctx)
	}
	return precompute.Run(ctx)
}
