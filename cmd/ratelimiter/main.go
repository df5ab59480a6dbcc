package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arjunmehta/ratequota/config"
	"github.com/arjunmehta/ratequota/internal/admission"
	"github.com/arjunmehta/ratequota/internal/api"
	"github.com/arjunmehta/ratequota/internal/billing"
	"github.com/arjunmehta/ratequota/internal/catalog"
	"github.com/arjunmehta/ratequota/internal/counterstore"
	"github.com/arjunmehta/ratequota/internal/database"
	"github.com/arjunmehta/ratequota/internal/httpmw"
	"github.com/arjunmehta/ratequota/internal/logger"
	"github.com/arjunmehta/ratequota/internal/metrics"
	"github.com/arjunmehta/ratequota/internal/notify"
	"github.com/arjunmehta/ratequota/internal/subscription"
	"github.com/arjunmehta/ratequota/internal/throttle"
	"github.com/arjunmehta/ratequota/internal/usage"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting ratequota admission service",
		"version", Version,
		"build_time", BuildTime,
		"git_commit", GitCommit,
	)

	if cfg.Metrics.Enabled {
		metrics.Init()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer db.Close(ctx)

	if err := catalog.EnsureSchema(ctx, db); err != nil {
		logger.Fatal("Failed to apply catalog schema", "error", err)
	}
	cat := catalog.New(db)

	store, err := counterstore.New(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to initialize counter store", "error", err)
	}
	defer store.Close()

	resolver := subscription.New(store, cat)

	thresholds := throttle.Thresholds{
		Mode:        cfg.RateLimit.Throttling,
		SoftDelayMs: cfg.RateLimit.SoftDelayMs,
		Soft:        cfg.RateLimit.GlobalSoftThreshold,
		Warn:        cfg.RateLimit.GlobalWarnThreshold,
		Full:        cfg.RateLimit.GlobalFullThreshold,
		Hard:        cfg.RateLimit.GlobalHardThreshold,
	}
	admissionFilter := admission.New(cat, resolver, store, thresholds)

	billingHandler := billing.NewHandler(cfg.Billing, cat, resolver)
	apiHandler := api.NewHandler(cat, store, billingHandler, cfg.Admin.AdminSecret)
	notifyHandler := notify.NewHandler()

	usage.StartAggregator(ctx, db, cat, store)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmw.Logging)
	r.Use(httpmw.Metrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.ReadTimeout))
	r.Use(httpmw.Security)

	apiHandler.RegisterRoutes(r)

	r.Route("/api/notify", func(r chi.Router) {
		r.Use(admissionFilter.Middleware)
		r.Post("/sms", notifyHandler.SMS)
		r.Post("/email", notifyHandler.Email)
	})

	if cfg.Metrics.Enabled {
		go startMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting HTTP server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

func startMetricsServer(port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting metrics server", "address", addr, "path", path)

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server failed", "error", err)
	}
}
