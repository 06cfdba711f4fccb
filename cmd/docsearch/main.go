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

	"github.com/joho/godotenv"

	"github.com/docstream-labs/docsearch/internal/index"
	"github.com/docstream-labs/docsearch/internal/ingest"
	"github.com/docstream-labs/docsearch/internal/ratelimit"
	"github.com/docstream-labs/docsearch/internal/search"
	"github.com/docstream-labs/docsearch/internal/store"
	"github.com/docstream-labs/docsearch/pkg/config"
	"github.com/docstream-labs/docsearch/pkg/database"
	"github.com/docstream-labs/docsearch/pkg/health"
	"github.com/docstream-labs/docsearch/pkg/logger"
	"github.com/docstream-labs/docsearch/pkg/metrics"
	"github.com/docstream-labs/docsearch/pkg/middleware"
	pkgredis "github.com/docstream-labs/docsearch/pkg/redis"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting docsearch", "port", cfg.Server.Port, "database", cfg.Database.Driver)

	db, err := database.New(cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	docStore := store.New(db)
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := docStore.Migrate(startupCtx); err != nil {
		startupCancel()
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}
	startupCancel()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	limiter, err := ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, docStore)
	if err != nil {
		slog.Error("failed to initialise rate limiter", "error", err)
		os.Exit(1)
	}

	var resultCache search.ResultCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using in-memory result cache", "error", err)
			resultCache = search.NewMemoryCache()
		} else {
			defer redisClient.Close()
			resultCache = search.NewRedisCache(redisClient, cfg.Redis.CacheTTL)
			slog.Info("redis result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	} else {
		resultCache = search.NewMemoryCache()
	}

	indexManager := index.NewManager(docStore, m)
	searcher := search.NewSearcher(indexManager, resultCache)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sources []ingest.Source
	if len(cfg.Ingest.Webpages) > 0 {
		sources = append(sources, ingest.NewWebpageSource("webpages", cfg.Ingest.Webpages))
	}
	if cfg.Kafka.Enabled {
		kafkaSource := ingest.NewKafkaSource(cfg.Kafka)
		defer kafkaSource.Close()
		sources = append(sources, kafkaSource)
	}
	coordinator, err := ingest.New(docStore, indexManager, resultCache, sources, cfg.Ingest, m)
	if err != nil {
		slog.Error("failed to create ingestion coordinator", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := coordinator.Run(ctx); err != nil {
			slog.Error("ingestion coordinator error", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("database", func(ctx context.Context) health.ComponentHealth {
		if err := docStore.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: indexManager.String()}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	h := search.NewHandler(searcher, limiter, m, cfg.Search.DefaultTopK, cfg.Search.DefaultThreshold)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /health", checker.LiveHandler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
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
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("docsearch listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("docsearch stopped")
}
