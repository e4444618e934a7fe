package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/ConnectBest/failover-orchestrator/internal/auth"
	"github.com/ConnectBest/failover-orchestrator/internal/config"
	"github.com/ConnectBest/failover-orchestrator/internal/failover"
	"github.com/ConnectBest/failover-orchestrator/internal/handlers"
	"github.com/ConnectBest/failover-orchestrator/internal/history"
	"github.com/ConnectBest/failover-orchestrator/internal/initialization"
	"github.com/ConnectBest/failover-orchestrator/internal/logging"
	"github.com/ConnectBest/failover-orchestrator/internal/metrics"
	"github.com/ConnectBest/failover-orchestrator/internal/middleware"
	"github.com/ConnectBest/failover-orchestrator/internal/orchestrator"
	"github.com/ConnectBest/failover-orchestrator/internal/probe"
	"github.com/ConnectBest/failover-orchestrator/internal/routing"
	"github.com/ConnectBest/failover-orchestrator/internal/sentinel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewLogger("error", "text", "stderr").Error("Invalid configuration", err, nil)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	logger.Info("Starting failover orchestrator", map[string]interface{}{
		"active_region": cfg.Failover.ActiveRegion,
		"regions":       len(cfg.Failover.Regions),
	})

	// Relational probe: one handle per configured endpoint.
	targets := make(map[failover.Region]probe.Target, len(cfg.Failover.Regions))
	for name, region := range cfg.Failover.Regions {
		targets[failover.Region(name)] = probe.Target{
			Addr: region.Relational.Addr(),
			DSN:  region.Relational.DSN(),
		}
	}
	relProbe, err := probe.NewPostgresProbe(targets, logger.Component("probe"))
	if err != nil {
		logger.Error("Failed to initialize relational probe", err, nil)
		os.Exit(1)
	}
	defer relProbe.Close()

	sentinelClient := sentinel.NewQuorumClient(cfg.Failover.SentinelEndpoints, logger.Component("sentinel"))
	defer sentinelClient.Close()

	active := cfg.Failover.Regions[cfg.Failover.ActiveRegion]
	registry := routing.NewRegistry(
		failover.Region(cfg.Failover.ActiveRegion),
		active.Relational.Addr(),
		active.Cache,
	)
	metrics.SetRoutingVersion(float64(registry.Read().Version))

	store := history.NewStore(cfg.History.Capacity)
	if cfg.History.JournalPath != "" {
		journal, err := history.OpenJournal(cfg.History.JournalPath, logger.Component("history"))
		if err != nil {
			logger.Error("Failed to open history journal", err, nil)
			os.Exit(1)
		}
		defer journal.Close()
		store.AttachJournal(journal)
	}

	regions := make(map[failover.Region]orchestrator.RegionEndpoints, len(cfg.Failover.Regions))
	for name, region := range cfg.Failover.Regions {
		regions[failover.Region(name)] = orchestrator.RegionEndpoints{
			Relational: region.Relational.Addr(),
			Cache:      region.Cache,
		}
	}

	coordinator := orchestrator.NewCoordinator(orchestrator.Options{
		Regions:         regions,
		CacheService:    cfg.Failover.CacheServiceName,
		OverallBudget:   cfg.Failover.OverallBudget,
		MaxLagTolerated: cfg.Failover.MaxLagTolerated,
		StepBudgets:     stepBudgets(cfg.Failover.StepBudgets),
	}, relProbe, sentinelClient, registry, store, logger.Component("coordinator"))

	// Startup connectivity check. Non-fatal: the data plane may come up
	// after the orchestrator does.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if ferr := initialization.WaitForDataPlane(startupCtx, logger.Component("startup"), initialization.DefaultBackoff(), coordinator.Health); ferr != nil {
		logger.Warn("Data plane not fully reachable at startup", map[string]interface{}{
			"kind":  string(ferr.Kind),
			"error": ferr.Message,
		})
	}
	startupCancel()

	apiLogger := logger.Component("api")
	failoverHandlers := handlers.NewFailoverHandlers(coordinator, registry, store, apiLogger)
	systemMetricsHandlers := handlers.NewSystemMetricsHandlers(apiLogger)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)

	router := mux.NewRouter()
	router.Use(middleware.CorrelationMiddleware())
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RequestSizeMiddleware(1 << 20))
	router.Use(middleware.RateLimitMiddleware(rateLimiter))

	trigger := http.Handler(http.HandlerFunc(failoverHandlers.Trigger))
	if cfg.Auth.Mode == "jwt" {
		trigger = auth.JWTMiddleware([]byte(cfg.Auth.JWTSecret))(trigger)
	}
	router.Handle("/failover/{target_region}", trigger).Methods("POST")

	router.HandleFunc("/status", failoverHandlers.Status).Methods("GET")
	router.HandleFunc("/status/ws", failoverHandlers.StatusWebSocket).Methods("GET")
	router.HandleFunc("/history", failoverHandlers.History).Methods("GET")
	router.HandleFunc("/metrics", failoverHandlers.Metrics).Methods("GET")
	router.Handle("/metrics/prometheus", metrics.Handler()).Methods("GET")
	router.HandleFunc("/health", failoverHandlers.Health).Methods("GET")
	router.HandleFunc("/system-metrics", systemMetricsHandlers.GetSystemMetrics).Methods("GET")

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server starting", map[string]interface{}{"address": addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", err, nil)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", err, nil)
	}

	logger.Info("Server stopped", nil)
}

// stepBudgets merges configured overrides over the coordinator defaults
func stepBudgets(overrides config.StepBudgetsConfig) orchestrator.StepBudgets {
	budgets := orchestrator.DefaultStepBudgets()
	if overrides.HealthCheck > 0 {
		budgets.HealthCheck = overrides.HealthCheck
	}
	if overrides.PromoteRelational > 0 {
		budgets.PromoteRelational = overrides.PromoteRelational
	}
	if overrides.FailoverCache > 0 {
		budgets.FailoverCache = overrides.FailoverCache
	}
	if overrides.UpdateRouting > 0 {
		budgets.UpdateRouting = overrides.UpdateRouting
	}
	if overrides.Validate > 0 {
		budgets.Validate = overrides.Validate
	}
	return budgets
}
