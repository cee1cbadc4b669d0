package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/database"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/logger"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/router"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/analyzer"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/collab"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/conversation"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/orchestrator"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/ratelimit"
	redisinfra "github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/redis"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/routing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/trace"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"

	_ "github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/docs"
)

// @title 5-Tier Hybrid LLM Orchestrator API
// @version 1.0
// @description Cost-aware router and collaborative execution pipeline across a five-tier model fleet.

// @license.name MIT

// @host localhost:8080
// @BasePath /

// Idle usage sessions get settled so a crashed client cannot pin a
// session open for the rest of the month.
const (
	sessionSweepEvery = time.Minute
	sessionMaxIdle    = 30 * time.Minute
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, redisClient := connectBackends(cfg, log)
	if db != nil {
		defer func() { _ = database.Close(db) }()
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	if db == nil || redisClient == nil {
		log.Warn("running degraded: admission control and routing stay up, but "+
			"session persistence, alert history, pricing overrides, and settled "+
			"budget state are unavailable until the missing backends return",
			zap.Bool("database", db != nil),
			zap.Bool("redis", redisClient != nil))
	}

	pricingManager, err := pricing.NewManager(log)
	if err != nil {
		log.Fatal("failed to load pricing table", zap.Error(err))
	}
	pricingManager.ApplyConfigOverrides(cfg.Models)
	if db != nil {
		pricingManager.SetRepository(pricing.NewGormRepository(db))
		if err := pricingManager.LoadDatabaseOverrides(ctx); err != nil {
			log.Warn("failed to load pricing overrides", zap.Error(err))
		}
	}

	var pricingCache *pricing.Cache
	if redisClient != nil {
		pricingCache = pricing.NewCache(redisClient, pricingManager, log)
		pricingManager.SetInvalidator(pricingCache)
		if err := pricingCache.LoadAll(ctx); err != nil {
			log.Warn("failed to warm pricing cache", zap.Error(err))
		}
	}

	reg, err := registry.NewFromConfig(cfg, log)
	if err != nil {
		log.Fatal("failed to build model registry", zap.Error(err))
	}

	an := analyzer.New(cfg.Analyzer, log)
	tracker := usage.NewTracker(log)

	// The persisted budget contract wins over the config file once seeded,
	// so admin API changes survive restarts.
	budgetCfg := cfg.Budget
	var settings *budget.SettingsStore
	var alerts *budget.GormAlertStore
	if db != nil {
		settings = budget.NewSettingsStore(db)
		loaded, err := settings.LoadOrSeed(ctx, cfg.Budget)
		if err != nil {
			log.Warn("failed to load budget settings, using config values", zap.Error(err))
		} else {
			budgetCfg = loaded
		}
		alerts = budget.NewGormAlertStore(db)
	}

	ctrlCfg := budget.ControllerConfig{
		Ledger:  budget.NewLedger(budgetCfg, log),
		Pricing: pricingManager,
		Tracker: tracker,
		Logger:  log,
	}
	if alerts != nil {
		ctrlCfg.Alerts = alerts
	}
	if redisClient != nil {
		ctrlCfg.Queue = usage.NewQueue(&usage.QueueConfig{Client: redisClient, Logger: log})
		ctrlCfg.Cache = budget.NewCache(redisClient, 5*time.Minute, log)
	}
	ctrl := budget.NewController(ctrlCfg)
	if db != nil {
		if err := ctrl.HydrateFromStore(ctx, budget.NewGormReconciler(db)); err != nil {
			log.Warn("failed to hydrate budget ledger, starting from zero", zap.Error(err))
		}
	}

	var conversations conversation.Store
	if redisClient != nil {
		conversations = conversation.NewRedisStore(redisClient, cfg.Conversation.WindowTurns, cfg.Conversation.TTL, log)
	} else {
		conversations = conversation.NewMemoryStore(cfg.Conversation.WindowTurns)
	}

	var sink trace.Sink = trace.NewNoopSink()
	if cfg.Trace.Enabled && redisClient != nil {
		sink = trace.NewRedisSink(redisClient, cfg.Trace, log)
	}

	var sessions *collab.SessionStore
	if db != nil {
		sessions = collab.NewSessionStore(db)
	}

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewFixedWindow(redisClient, log)
	} else {
		mem := ratelimit.NewInMemory()
		defer mem.Close()
		limiter = mem
	}

	svc := orchestrator.New(orchestrator.Deps{
		Config:        cfg,
		Logger:        log,
		Registry:      reg,
		Router:        routing.New(cfg.Routing, an, reg, ctrl, log),
		Budget:        ctrl,
		Analyzer:      an,
		Usage:         tracker,
		Conversations: conversations,
		Trace:         sink,
		Sessions:      sessions,
	})

	go sweepIdleSessions(ctx, tracker, log)
	go startRegistrySync(ctx, reg, pricingManager, pricingCache, db != nil, log)

	mainHandler := router.New(router.Deps{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Redis:    redisClient,
		Service:  svc,
		Registry: reg,
		Pricing:  pricingManager,
		Budget:   ctrl,
		Tracker:  tracker,
		Limiter:  limiter,
		Sessions: sessions,
		Alerts:   alerts,
		Settings: settings,
	})

	servers := []*http.Server{
		{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      mainHandler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		{
			Addr:         fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			Handler:      router.NewMetricsRouter(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
	}
	names := []string{"api", "metrics"}

	for i, srv := range servers {
		go func(s *http.Server, name string) {
			log.Info("server starting",
				zap.String("server", name),
				zap.String("address", s.Addr))
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal("server failed to start",
					zap.String("server", name),
					zap.Error(err))
			}
		}(srv, names[i])
	}

	log.Info("orchestrator started",
		zap.Int("api_port", cfg.Server.Port),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
		zap.Bool("database", db != nil),
		zap.Bool("redis", redisClient != nil))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down servers")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer shutdownCancel()

	for i, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown",
				zap.String("server", names[i]),
				zap.Error(err))
		}
	}

	log.Info("servers shutdown complete")
}

// connectBackends tries Postgres and Redis once at boot. Either failing is
// not fatal; the caller degrades the features that need them.
func connectBackends(cfg *config.Config, log *zap.Logger) (*gorm.DB, *goredis.Client) {
	var db *gorm.DB
	if cfg.Database.URL != "" || os.Getenv("DATABASE_URL") != "" {
		conn, err := database.Connect(&database.Config{
			DSN:             cfg.Database.URL,
			MaxConnections:  cfg.Database.MaxConnections,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, log)
		if err != nil {
			log.Warn("database unavailable", zap.Error(err))
		} else if err := database.Migrate(conn); err != nil {
			log.Warn("database migration failed", zap.Error(err))
			_ = database.Close(conn)
		} else {
			db = conn
		}
	}

	var redisClient *goredis.Client
	if cfg.Redis.URL != "" {
		client, err := redisinfra.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable", zap.Error(err))
		} else {
			redisClient = client
		}
	}

	return db, redisClient
}

// sweepIdleSessions settles live usage sessions whose last activity is
// older than sessionMaxIdle.
func sweepIdleSessions(ctx context.Context, tracker *usage.Tracker, log *zap.Logger) {
	ticker := time.NewTicker(sessionSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := tracker.CloseIdle(ctx, sessionMaxIdle); n > 0 {
				log.Info("closed idle usage sessions", zap.Int("count", n))
			}
		}
	}
}
