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

	"go.uber.org/zap"

	"github.com/shubhsaxena/property-search/internal/api"
	"github.com/shubhsaxena/property-search/internal/cache"
	"github.com/shubhsaxena/property-search/internal/clickhouse"
	"github.com/shubhsaxena/property-search/internal/config"
	"github.com/shubhsaxena/property-search/internal/elasticsearch"
	"github.com/shubhsaxena/property-search/internal/firestore"
	"github.com/shubhsaxena/property-search/internal/geocode"
	"github.com/shubhsaxena/property-search/internal/indexing"
	"github.com/shubhsaxena/property-search/internal/kafka"
	"github.com/shubhsaxena/property-search/internal/llm"
	"github.com/shubhsaxena/property-search/internal/observability"
	"github.com/shubhsaxena/property-search/internal/orchestrator"
	"github.com/shubhsaxena/property-search/internal/postgres"
	"github.com/shubhsaxena/property-search/internal/resilience"
	"github.com/shubhsaxena/property-search/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting property search service",
		zap.String("service", cfg.Observability.ServiceName),
	)

	tracerShutdown, err := observability.InitTracer(cfg.Observability.ServiceName)
	if err != nil {
		logger.Warn("tracing initialization failed, continuing without tracing", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres is the system of record; everything else is optional and the
	// service degrades without it.
	pgBreaker := resilience.NewCircuitBreaker("postgres", cfg.Search.CircuitBreaker, logger)
	pgClient, err := postgres.NewClient(cfg.Postgres, pgBreaker, logger)
	if err != nil {
		return fmt.Errorf("initializing postgres: %w", err)
	}
	defer pgClient.Close()
	logger.Info("postgres client initialized")

	healthHandler := api.NewHealthHandler(logger)
	healthHandler.Register("postgres", pgClient)

	deps := orchestrator.Deps{
		Properties: pgClient,
		Leases:     pgClient,
		Documents:  pgClient,
	}
	handlerDeps := api.HandlerDeps{}

	var redisCache *cache.RedisCache
	if len(cfg.Redis.Addresses) > 0 {
		redisCache, err = cache.NewRedisCache(cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis initialization failed, result caching disabled", zap.Error(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			deps.Results = redisCache
			healthHandler.RegisterOptional("redis", redisCache)
			logger.Info("redis cache initialized")
		}
	}

	var esClient *elasticsearch.Client
	if len(cfg.Elasticsearch.Addresses) > 0 {
		esClient, err = elasticsearch.NewClient(cfg.Elasticsearch, cfg.Search, logger)
		if err != nil {
			logger.Warn("elasticsearch initialization failed, keyword search served by postgres", zap.Error(err))
			esClient = nil
		} else {
			deps.Index = esClient
			healthHandler.RegisterOptional("elasticsearch", esClient)
			logger.Info("elasticsearch client initialized")
		}
	}

	var chClient *clickhouse.Client
	if len(cfg.ClickHouse.Addresses) > 0 {
		chClient, err = clickhouse.NewClient(cfg.ClickHouse, logger)
		if err != nil {
			logger.Warn("clickhouse initialization failed, analytics will be unavailable", zap.Error(err))
			chClient = nil
		} else {
			defer chClient.Close()
			if err := chClient.EnsureTables(ctx); err != nil {
				logger.Warn("clickhouse table creation failed", zap.Error(err))
			}
			deps.Analytics = chClient
			handlerDeps.Stats = chClient
			healthHandler.RegisterOptional("clickhouse", chClient)
			logger.Info("clickhouse client initialized")
		}
	}

	if cfg.Firestore.ProjectID != "" {
		fsClient, err := firestore.NewClient(ctx, cfg.Firestore, logger)
		if err != nil {
			logger.Warn("firestore initialization failed, audit trail will be unavailable", zap.Error(err))
		} else {
			defer fsClient.Close()
			deps.Audit = fsClient
			handlerDeps.Audit = fsClient
			healthHandler.RegisterOptional("firestore", fsClient)
			logger.Info("firestore client initialized")
		}
	}

	if cfg.Storage.Bucket != "" {
		signer, err := storage.NewSigner(ctx, cfg.Storage, logger)
		if err != nil {
			logger.Warn("storage initialization failed, file urls will not be signed", zap.Error(err))
		} else {
			defer signer.Close()
			deps.Signer = signer
			handlerDeps.Files = signer
			healthHandler.RegisterOptional("storage", signer)
			logger.Info("storage signer initialized")
		}
	}

	if cfg.Gemini.APIKey != "" {
		gemini := llm.NewClient(cfg.Gemini, cfg.Search, logger)
		deps.Generator = gemini
		deps.Embedder = gemini
		logger.Info("language model client initialized", zap.String("model", cfg.Gemini.Model))
	} else {
		logger.Warn("no language model configured, natural-language queries use the extraction fallback")
	}

	if cfg.Geocoding.APIKey != "" {
		deps.Geocoder = geocode.NewClient(cfg.Geocoding, cfg.Search, logger)
	} else {
		logger.Warn("no geocoder configured, location queries will fail")
	}
	if cfg.Geocoding.CacheBackend == config.GeoCacheRedis && redisCache != nil {
		deps.GeoCache = redisCache.GeoCache()
	}

	deps.SlowQuery = observability.NewSlowQueryDetector(
		cfg.Search.SlowQuery.WarningThreshold,
		cfg.Search.SlowQuery.CriticalThreshold,
		logger,
		deps.Analytics,
	)

	orch := orchestrator.New(deps, cfg.Search, cfg.Geocoding.CacheTTL, logger)
	defer orch.Close()
	handlerDeps.Search = orch

	// Change stream: the producer feeds reindex runs and the dead-letter
	// topic, the consumer keeps the keyword index in step with Postgres.
	var consumer *kafka.Consumer
	var streamProcessor *indexing.StreamProcessor
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, logger)
		defer producer.Close()
		handlerDeps.Reindex = indexing.NewReindexer(pgClient, producer, cfg.Elasticsearch.BulkSize, logger)

		if esClient != nil {
			var changelog indexing.ChangeLog
			if chClient != nil {
				changelog = chClient
			}
			var invalidator indexing.CacheInvalidator
			if redisCache != nil {
				invalidator = redisCache
			}
			streamProcessor = indexing.NewStreamProcessor(esClient, changelog, invalidator, cfg.Elasticsearch, logger)

			consumer = kafka.NewConsumer(cfg.Kafka, streamProcessor.HandleEvent, producer, logger)
			if err := consumer.Start(ctx); err != nil {
				logger.Warn("kafka consumer start failed, indexing pipeline will be unavailable", zap.Error(err))
				consumer = nil
			} else {
				healthHandler.RegisterOptional("kafka", consumer)
				logger.Info("kafka consumer started")
			}
		}
	}

	handler := api.NewHandler(handlerDeps, logger)
	router := api.NewRouter(handler, healthHandler, cfg.Server, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	logger.Info("starting graceful shutdown", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	// Stop consuming before the processor flushes its last batch.
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("kafka consumer stop error", zap.Error(err))
		}
	}
	if streamProcessor != nil {
		if err := streamProcessor.Stop(); err != nil {
			logger.Error("stream processor stop error", zap.Error(err))
		}
	}

	cancel()

	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}
