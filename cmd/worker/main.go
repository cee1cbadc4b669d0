package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/database"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/logger"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	redisinfra "github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/redis"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/trace"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/worker"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file directory")
		batchSize  = flag.Int("batch-size", 100, "Records drained per settlement round")
		interval   = flag.Duration("interval", 30*time.Second, "Settlement interval")
		healthAddr = flag.String("health-addr", ":8082", "Health endpoint listen address")
		logLevel   = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	log.Info("starting usage worker",
		zap.Int("batch_size", *batchSize),
		zap.Duration("interval", *interval))

	db, err := database.Connect(&database.Config{
		DSN:             cfg.Database.URL,
		MaxConnections:  cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}

	queue := usage.NewQueue(&usage.QueueConfig{
		Client:    redisClient,
		Logger:    log,
		BatchSize: *batchSize,
	})
	locks := redisinfra.NewLockManager(redisClient, log)
	events := redisinfra.NewEventPublisher(redisClient, "worker", log)
	cache := budget.NewCache(redisClient, 5*time.Minute, log)

	var sink trace.Sink = trace.NewNoopSink()
	if cfg.Trace.Enabled {
		sink = trace.NewRedisSink(redisClient, cfg.Trace, log)
	}

	pricingManager, err := pricing.NewManager(log)
	if err != nil {
		log.Fatal("failed to load pricing table", zap.Error(err))
	}
	pricingManager.ApplyConfigOverrides(cfg.Models)
	pricingManager.SetRepository(pricing.NewGormRepository(db))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pricingManager.LoadDatabaseOverrides(ctx); err != nil {
		log.Warn("failed to load pricing overrides", zap.Error(err))
	}

	processor := worker.New(worker.Config{
		DB:             db,
		Logger:         log,
		Queue:          queue,
		Locks:          locks,
		Events:         events,
		Cache:          cache,
		Sink:           sink,
		Pricing:        pricingManager,
		BatchSize:      *batchSize,
		Interval:       *interval,
		BudgetResetDay: cfg.Budget.BudgetResetDay,
		Timezone:       cfg.Budget.Timezone,
	})

	if err := processor.Start(ctx); err != nil {
		log.Fatal("failed to start processor", zap.Error(err))
	}

	healthSrv := newHealthServer(*healthAddr, db, processor)
	go func() {
		log.Info("health server starting", zap.String("address", *healthAddr))
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("health server failed", zap.Error(err))
		}
	}()

	log.Info("usage worker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping worker")
	cancel()
	processor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("health server shutdown failed", zap.Error(err))
	}

	if err := database.Close(db); err != nil {
		log.Error("database close failed", zap.Error(err))
	}
	_ = redisClient.Close()

	log.Info("usage worker stopped")
}

// newHealthServer exposes liveness plus processor statistics on a port
// separate from any API surface, so orchestration probes keep working while
// the worker is mid-batch.
func newHealthServer(addr string, db *gorm.DB, processor *worker.Processor) *http.Server {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		healthy := database.IsHealthy(db)
		status := "healthy"
		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			status = "degraded"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   status,
			"database": healthy,
		})
	})

	r.Get("/health/detailed", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		stats, err := processor.Stats(req.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(stats)
	})

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
