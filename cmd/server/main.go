package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/api"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/cache"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/config"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/extraction"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/health"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
	embstore "github.com/Dushime20/urutibiz-backend-sub011/pkg/repository/embedding"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/repository/images"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/resilience"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/search"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := observability.NewStandardLogger("similarity-server")
	metrics := observability.NewPrometheusMetrics("urutibiz")
	defer func() {
		_ = metrics.Close()
	}()

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	resultBackend, redisCache := buildCache(cfg, logger)
	defer func() {
		_ = resultBackend.Close()
	}()

	store, err := embstore.NewPostgresStore(db, cfg.Database.ScanCap, logger.WithPrefix("store"))
	if err != nil {
		return err
	}

	service, err := extraction.NewServiceExtractor(cfg.Extraction.Service, logger.WithPrefix("extraction"), metrics)
	if err != nil {
		return err
	}
	local := extraction.NewLocalModelExtractor(cfg.Extraction.LocalModelPath, logger.WithPrefix("extraction"))
	signalTier := extraction.NewSignalExtractor()
	chain := extraction.NewChain(logger.WithPrefix("extraction"), service, local, signalTier)

	monitor := extraction.NewHealthMonitor(service, cfg.Extraction.Service.HealthInterval, logger.WithPrefix("health-monitor"), metrics)

	limiters := resilience.NewRateLimiterManager(map[string]resilience.RateLimiterConfig{
		search.RateLimiterSearch: cfg.Extraction.SearchRateLimit,
	}, cfg.Extraction.SearchRateLimit)

	catalog := images.NewPostgresImages(db, logger.WithPrefix("images"))
	results := search.NewResultCache(resultBackend, cfg.Search.ResultTTL, logger.WithPrefix("result-cache"))
	engine := search.NewEngine(cfg.Search, chain, signalTier, store, results, limiters, catalog, logger.WithPrefix("search"), metrics)

	checker := health.NewHealthChecker(logger.WithPrefix("health"), metrics)
	checker.RegisterCheck("database", health.NewDatabaseCheck(db))
	if redisCache != nil {
		checker.RegisterCheck("redis", health.NewRedisCheck(redisCache.Client()))
	}
	checker.RegisterCheck("inference_service", health.NewInferenceServiceCheck(service))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.Start(ctx)
	go checker.StartBackgroundChecks(ctx)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	api.NewHealthAPI(checker).RegisterRoutes(router, metrics)
	v1 := router.Group("/api/v1")
	api.NewSearchAPI(engine, cfg.API.MaxImageBytes, logger.WithPrefix("api")).RegisterRoutes(v1)

	server := &http.Server{
		Addr:         cfg.API.ListenAddress,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", map[string]interface{}{
			"address": cfg.API.ListenAddress,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", map[string]interface{}{
			"signal": sig.String(),
		})
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func connectDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// buildCache prefers Redis and falls back to an in-process LRU so a cache
// outage never takes search down with it.
func buildCache(cfg *config.Config, logger observability.Logger) (cache.Cache, *cache.RedisCache) {
	if cfg.Cache.Address != "" {
		redisCache, err := cache.NewRedisCache(cfg.Cache)
		if err == nil {
			return redisCache, redisCache
		}
		logger.Warn("redis unavailable, using in-process cache", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return cache.NewLRUCache(1024, cfg.Search.ResultTTL), nil
}
