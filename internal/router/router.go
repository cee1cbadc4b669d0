// Package router assembles the HTTP surface: the orchestrator API under
// /v1, operational probes, Prometheus metrics, and the Swagger UI.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/handlers"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/middleware"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/collab"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/orchestrator"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/ratelimit"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/usage"
)

// Deps carries the wired services the HTTP surface exposes. DB, Redis,
// Limiter, and the persistence stores may be nil; the affected endpoints
// degrade instead of the router failing to build.
type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *gorm.DB
	Redis    *redis.Client
	Service  *orchestrator.Service
	Registry *registry.Registry
	Pricing  *pricing.Manager
	Budget   *budget.Controller
	Tracker  *usage.Tracker
	Limiter  ratelimit.Limiter
	Sessions *collab.SessionStore
	Alerts   *budget.GormAlertStore
	Settings *budget.SettingsStore
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Metrics())

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORS.AllowedOrigins,
		AllowedMethods:   d.Config.CORS.AllowedMethods,
		AllowedHeaders:   d.Config.CORS.AllowedHeaders,
		ExposedHeaders:   d.Config.CORS.ExposedHeaders,
		AllowCredentials: d.Config.CORS.AllowCredentials,
		MaxAge:           d.Config.CORS.MaxAge,
	}))

	r.Use(middleware.RateLimit(d.Limiter, d.Config.RateLimit, d.Logger))

	healthHandler := handlers.NewHealthHandler(d.DB, d.Redis)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	orchHandler := handlers.NewOrchestratorHandler(d.Logger, d.Config, d.Service, d.Sessions)
	modelsHandler := handlers.NewModelsHandler(d.Logger, d.Registry, d.Pricing)
	pricingHandler := handlers.NewPricingHandler(d.Logger, d.Pricing)
	budgetHandler := handlers.NewBudgetHandler(d.Logger, d.Config, d.Budget, d.Alerts, d.Settings)
	sessionsHandler := handlers.NewSessionsHandler(d.Logger, d.Tracker, d.DB)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/process", orchHandler.Process)

		r.Post("/collaborative", orchHandler.Collaborative)
		r.Get("/collaborative/{id}", orchHandler.CollaborativeStatus)
		r.Get("/collaborative/{id}/stream", orchHandler.CollaborativeStream)

		r.Get("/models", modelsHandler.ListModels)
		r.Get("/models/{id}", modelsHandler.GetModel)
		r.Post("/models/{id}/pricing/calculate", modelsHandler.CalculatePricing)

		r.Post("/pricing/compare", pricingHandler.ComparePricing)
		r.Get("/pricing/{id}", pricingHandler.GetPricing)
		r.Put("/pricing/{id}", pricingHandler.UpdatePricing)

		r.Get("/budget", budgetHandler.Status)
		r.Get("/budget/config", budgetHandler.GetConfig)
		r.Put("/budget/config", budgetHandler.UpdateConfig)

		r.Get("/alerts", budgetHandler.ListAlerts)
		r.Post("/alerts/{id}/ack", budgetHandler.AcknowledgeAlert)

		r.Get("/sessions", sessionsHandler.ListSessions)
		r.Get("/sessions/{id}", sessionsHandler.GetSession)
		r.Post("/sessions/{id}/close", sessionsHandler.CloseSession)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		body := domain.ErrorResponse(
			domain.Errorf(domain.CodeOrchestratorError, "no route for %s %s", r.Method, r.URL.Path), 0)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			d.Logger.Error("failed to write 404 response", zap.Error(err))
		}
	})

	return r
}
