package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kortexlabs/kortex/internal/agent"
	"github.com/kortexlabs/kortex/internal/api/handlers"
	mw "github.com/kortexlabs/kortex/internal/api/middleware"
	"github.com/kortexlabs/kortex/internal/config"
	"github.com/kortexlabs/kortex/internal/domain"
	"github.com/kortexlabs/kortex/internal/service"
	"github.com/kortexlabs/kortex/internal/store"
)

// App holds the router, the coordinator, and the background optimizer for
// lifecycle management.
type App struct {
	Router       *chi.Mux
	Coordinator  *service.CoordinatorService
	Optimizer    *service.OptimizerService
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	conversationStore := store.NewConversationStore(db)
	learningStore := store.NewLearningStore(db)
	metricStore := store.NewMetricStore(db)
	stateStore := store.NewStateStore(db)

	// Handler pool
	registry := agent.NewDefaultRegistry()

	// Services
	patternSvc := service.NewPatternService(conversationStore, learningStore, metricStore, logger)
	extractor := service.NewExtractor(conversationStore, logger)
	coordinatorSvc := service.NewCoordinatorService(
		patternSvc, registry, extractor,
		learningStore, metricStore, stateStore,
		service.Config{
			LearningThreshold:     config.LearningThreshold(),
			OptimizationFrequency: config.OptimizationFrequency(),
		},
		logger,
	)
	optimizerSvc := service.NewOptimizerService(coordinatorSvc, logger)

	// Handlers
	conversationHandler := handlers.NewConversationHandler(coordinatorSvc)
	systemHandler := handlers.NewSystemHandler(coordinatorSvc)

	r := chi.NewRouter()

	app := &App{
		Router:      r,
		Coordinator: coordinatorSvc,
		Optimizer:   optimizerSvc,
		startTime:   time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/conversations/process", conversationHandler.Process)
		r.Get("/status", systemHandler.Status)
		r.Get("/insights", systemHandler.Insights)
		r.Get("/agents", systemHandler.Agents)
		r.Post("/optimize", systemHandler.Optimize)
		r.Post("/memory/reset", systemHandler.ResetMemory)
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy interfaces at compile time.
var (
	_ domain.ConversationStore = (*store.ConversationStore)(nil)
	_ domain.LearningStore     = (*store.LearningStore)(nil)
	_ domain.MetricStore       = (*store.MetricStore)(nil)
	_ domain.StateStore        = (*store.StateStore)(nil)
)
