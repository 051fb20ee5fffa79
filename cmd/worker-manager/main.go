package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"facility-search-workers/internal/common/camunda"
	"facility-search-workers/internal/common/config"
	"facility-search-workers/internal/common/database"
	"facility-search-workers/internal/common/genai"
	"facility-search-workers/internal/common/logger"
	"facility-search-workers/internal/common/observability"
	"facility-search-workers/internal/common/validation"
	"facility-search-workers/internal/lookup"
	"facility-search-workers/pkg/registry"

	be "facility-search-workers/internal/workers/hybrid-search/batch-enrich"
	ec "facility-search-workers/internal/workers/hybrid-search/enrichment-cache"
	mr "facility-search-workers/internal/workers/hybrid-search/merge-results"
	ni "facility-search-workers/internal/workers/hybrid-search/normalize-intent"
	qr "facility-search-workers/internal/workers/hybrid-search/query-registry"
	rq "facility-search-workers/internal/workers/hybrid-search/resolve-query"
	sr "facility-search-workers/internal/workers/hybrid-search/synthesize-response"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// backends holds the connections the configured registry and cache need.
// Unused ones stay nil.
type backends struct {
	pg    *database.PostgresClient
	es    *database.ElasticsearchClient
	redis *database.RedisClient
}

func (b *backends) close() {
	if b.pg != nil {
		_ = b.pg.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

func (b *backends) ping(ctx context.Context) error {
	if b.pg != nil {
		if err := b.pg.Ping(ctx); err != nil {
			return err
		}
	}
	if b.es != nil {
		if err := b.es.Ping(ctx); err != nil {
			return err
		}
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting worker manager...", zap.String("version", cfg.App.Version))

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer obs.Shutdown(context.Background())

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	tables := lookup.Default()
	if cfg.Lookup.TablesPath != "" {
		tables, err = lookup.Load(cfg.Lookup.TablesPath)
		if err != nil {
			zapLog.Fatal("lookup tables load failed", zap.Error(err))
		}
	}

	catalog, err := loadCatalog(cfg.Lookup.ActivitiesPath)
	if err != nil {
		zapLog.Fatal("activity catalog invalid", zap.Error(err))
	}

	// --- Init Zeebe Client with retry ---
	var zeebeClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	conns, err := connect(ctx, cfg, zapLog)
	if err != nil {
		zapLog.Fatal("backend connection failed", zap.Error(err))
	}
	defer conns.close()

	// --- Pipeline stages ---
	facilities := newRegistry(cfg.Pipeline.Registry, conns)

	cacheCfg := &ec.Config{
		TTL:       cfg.Pipeline.Cache.CacheTTL(),
		Table:     cfg.Pipeline.Cache.Table,
		KeyPrefix: cfg.Pipeline.Cache.KeyPrefix,
		Timeout:   config.GetDuration(cfg.Pipeline.Cache.TimeoutMs),
	}
	backend, err := ec.OpenBackend(cfg.Pipeline.Cache.Backend, sqlDB(conns), redisClient(conns), cacheCfg)
	if err != nil {
		zapLog.Fatal("cache backend init failed", zap.Error(err))
	}
	cache := ec.NewCache(cacheCfg, backend, log)
	if cfg.Pipeline.Cache.AutoMigrate {
		if err := cache.EnsureSchema(ctx); err != nil {
			zapLog.Warn("cache schema migration failed, cache will run degraded", zap.Error(err))
		}
	}

	gen := genai.NewClient(&genai.Config{
		BaseURL:   cfg.APIs.GenAI.BaseURL,
		APIKey:    cfg.APIs.GenAI.APIKey,
		LowModel:  cfg.APIs.GenAI.LowModel,
		HighModel: cfg.APIs.GenAI.HighModel,
		Timeout:   config.GetDuration(cfg.APIs.GenAI.Timeout),
	})
	enrichGen := genai.NewClient(&genai.Config{
		BaseURL:  cfg.APIs.Enrichment.BaseURL,
		APIKey:   cfg.APIs.Enrichment.APIKey,
		LowModel: cfg.APIs.Enrichment.Model,
		Timeout:  config.GetDuration(cfg.APIs.Enrichment.Timeout),
	})

	fetcher := be.NewHandler(enrichmentConfig(cfg.Pipeline.Enrichment), enrichGen, cache, tables, log)

	stages := rq.Stages{
		Normalizer:  ni.NewHandler(normalizerConfig(cfg.Pipeline.Normalizer), gen, tables, log),
		Registry:    qr.NewHandler(registryConfig(cfg.Pipeline.Registry), facilities, tables, log),
		Cache:       cache,
		Fetcher:     fetcher,
		Merger:      mr.NewHandler(tables, log),
		Synthesizer: sr.NewHandler(synthesisConfig(cfg.Pipeline.Synthesis), gen, tables, log),
	}

	// --- Workers ---
	var workers []*camunda.Worker

	resolveCfg := config.GetWorkerConfig(cfg, rq.TaskType)
	refreshCfg := config.GetWorkerConfig(cfg, rq.RefreshTaskType)
	rqConfig := rq.LoadConfig()
	rqConfig.Timeout = config.GetDuration(resolveCfg.Timeout)
	rqConfig.RefreshTimeout = config.GetDuration(refreshCfg.Timeout)

	resolver := rq.NewHandler(rqConfig, stages, obs, log).WithInputSchema(inputSchema(catalog, rq.TaskType, zapLog))
	if w := camunda.StartWorker(zeebeClient.GetClient(), rq.TaskType, resolveCfg, resolver.Handle, zapLog); w != nil {
		workers = append(workers, w)
	}

	refresher := rq.NewRefreshHandler(rqConfig, cache, fetcher, tables, log).WithInputSchema(inputSchema(catalog, rq.RefreshTaskType, zapLog))
	if w := camunda.StartWorker(zeebeClient.GetClient(), rq.RefreshTaskType, refreshCfg, refresher.Handle, zapLog); w != nil {
		workers = append(workers, w)
	}
	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	go purgeLoop(ctx, cache, time.Duration(cfg.Pipeline.Cache.PurgeIntervalMinutes)*time.Minute, zapLog)

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy", "")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := conns.ping(pingCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err.Error())
			return
		}
		if err := zeebeClient.HealthCheck(pingCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "not ready", err.Error())
			return
		}
		writeStatus(w, http.StatusOK, "ready", "")
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	stop()

	for _, w := range workers {
		w.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// connect opens only the stores the configured registry and cache backends use.
func connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backends, error) {
	b := &backends{}
	needPG := cfg.Pipeline.Registry.Backend != "elasticsearch" || cfg.Pipeline.Cache.Backend == ec.BackendPostgres || cfg.Pipeline.Cache.Backend == ""

	if needPG {
		err := retryWithBackoff(func() error {
			var err error
			b.pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return b.pg.Ping(ctx)
		}, 15, 2*time.Second, log, "PostgreSQL connection")
		if err != nil {
			return nil, err
		}
		log.Info("PostgreSQL connected successfully")
	}

	if cfg.Pipeline.Registry.Backend == "elasticsearch" {
		err := retryWithBackoff(func() error {
			var err error
			b.es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return b.es.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			b.close()
			return nil, err
		}
		log.Info("Elasticsearch connected successfully")
	}

	if cfg.Pipeline.Cache.Backend == ec.BackendRedis {
		b.redis = database.NewRedis(cfg.Database.Redis)
		err := retryWithBackoff(func() error {
			return b.redis.Ping(ctx)
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			b.close()
			return nil, err
		}
		log.Info("Redis connected successfully")
	}
	return b, nil
}

func newRegistry(cfg config.RegistryConfig, b *backends) qr.Registry {
	if cfg.Backend == "elasticsearch" {
		return qr.NewElasticsearchRegistry(b.es.Client, cfg.Index)
	}
	return qr.NewPostgresRegistry(b.pg.DB, cfg.Schema)
}

func loadCatalog(path string) (*registry.ActivityRegistry, error) {
	load := registry.Default
	if path != "" {
		load = func() (*registry.ActivityRegistry, error) { return registry.LoadRegistry(path) }
	}
	catalog, err := load()
	if err != nil {
		return nil, err
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// inputSchema returns the compiled input schema for taskType. Jobs of a type
// the catalog does not list are decoded unchecked.
func inputSchema(catalog *registry.ActivityRegistry, taskType string, log *zap.Logger) *validation.SchemaValidator {
	activity, ok := catalog.Find(taskType)
	if !ok {
		log.Warn("task type missing from activity catalog", zap.String("taskType", taskType))
		return nil
	}
	v, err := activity.InputValidator()
	if err != nil {
		log.Warn("input schema unusable", zap.String("taskType", taskType), zap.Error(err))
		return nil
	}
	return v
}

func purgeLoop(ctx context.Context, cache *ec.Cache, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := cache.PurgeExpired(ctx)
			if err != nil {
				log.Warn("cache purge failed", zap.Error(err))
				continue
			}
			log.Info("cache purge finished", zap.Int64("removed", n))
		}
	}
}

func writeStatus(w http.ResponseWriter, code int, status, detail string) {
	body := map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	}
	if detail != "" {
		body["error"] = detail
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
