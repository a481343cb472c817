package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rajasatyajit/brocante/config"
	"github.com/rajasatyajit/brocante/internal/api"
	"github.com/rajasatyajit/brocante/internal/canonical"
	"github.com/rajasatyajit/brocante/internal/classifier"
	"github.com/rajasatyajit/brocante/internal/database"
	"github.com/rajasatyajit/brocante/internal/fingerprint"
	"github.com/rajasatyajit/brocante/internal/logger"
	"github.com/rajasatyajit/brocante/internal/metrics"
	middlewares "github.com/rajasatyajit/brocante/internal/middleware"
	"github.com/rajasatyajit/brocante/internal/pipeline"
	"github.com/rajasatyajit/brocante/internal/runlock"
	"github.com/rajasatyajit/brocante/internal/scheduler"
	"github.com/rajasatyajit/brocante/internal/sources"
	"github.com/rajasatyajit/brocante/internal/store"
	"github.com/rajasatyajit/brocante/internal/taxonomy"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	once := flag.Bool("once", false, "run a single import, print its report and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting brocante ingestion",
		"version", Version,
		"build_time", BuildTime,
		"git_commit", GitCommit,
	)

	metrics.Init(cfg.Metrics.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize", "error", err)
	}
	defer a.Close(context.Background())

	if *once {
		if err := runOnce(ctx, a, os.Stdout); err != nil {
			logger.Error("Import failed", "error", err)
			a.Close(context.Background())
			os.Exit(1)
		}
		return
	}

	serve(ctx, cfg, a)
}

// app holds the wired components
type app struct {
	store        store.Store
	orchestrator *pipeline.Orchestrator
	scheduler    *scheduler.Scheduler
	closers      []func(context.Context)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	st, err := a.openStore(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.store = st

	tax, err := taxonomy.Load(cfg.Ingest.TaxonomyPath)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	loc := cfg.Ingest.Location()
	canon := canonical.New(classifier.New(tax), canonical.Options{
		Location:         loc,
		DefaultStartHour: cfg.Ingest.DefaultStartHour,
	})

	srcs := buildSources(cfg.Ingest)
	if len(srcs) == 0 {
		logger.Warn("No source enabled; imports will be empty")
	}

	a.orchestrator = pipeline.New(st, canon, fingerprint.New(loc), srcs, cfg.Pipeline, pipeline.Options{
		Location:        loc,
		LookaheadMonths: cfg.Ingest.LookaheadMonths,
	})

	locker, err := a.openLocker(cfg.Redis)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.scheduler = scheduler.New(a.orchestrator, locker, scheduler.Config{
		Interval:   cfg.Pipeline.ScheduleInterval,
		RunOnStart: cfg.Pipeline.RunOnStart,
		LockTTL:    cfg.Pipeline.RunLockTTL,
	})

	return a, nil
}

// openStore selects the event store from cfg.Store.Driver
func (a *app) openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Info("Using in-memory event store")
		return store.NewInMemoryStore(), nil
	case "sqlite":
		s, err := store.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) { s.Close() })
		logger.Info("Using sqlite event store", "path", cfg.Store.SQLitePath)
		return s, nil
	default:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("initialize database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		st, err := store.Open(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("prepare postgres store: %w", err)
		}
		return st, nil
	}
}

func (a *app) openLocker(cfg config.RedisConfig) (runlock.Locker, error) {
	if cfg.URL == "" {
		return runlock.NewLocalLocker(), nil
	}
	l, err := runlock.NewRedisLocker(cfg.URL, cfg.Password, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("initialize run lock: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) { l.Close() })
	logger.Info("Using redis run lock")
	return l, nil
}

// buildSources registers the enabled adapters in a fixed order
func buildSources(cfg config.IngestConfig) []sources.Source {
	var srcs []sources.Source
	if cfg.TourismEnabled {
		srcs = append(srcs, sources.NewTourismSource(cfg.TourismManifestPath, cfg.TourismObjectsDir))
	}
	if cfg.GeoFeedEnabled {
		srcs = append(srcs, sources.NewGeoFeedSource(cfg.GeoFeedURL, cfg.GeoFeedLimit, cfg.GeoFeedTimeout))
	}
	return srcs
}

// Close releases resources in reverse order of acquisition
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
	a.closers = nil
}

// runOnce runs a single import and writes its report as JSON to w
func runOnce(ctx context.Context, a *app, w io.Writer) error {
	report, runErr := a.scheduler.Trigger(ctx)
	if report != nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return runErr
}

func newRouter(cfg *config.Config, a *app) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.Logging)
	r.Use(middlewares.Metrics)
	r.Use(middleware.Recoverer)
	r.Use(middlewares.Security)

	apiHandler := api.NewHandler(a.store, a.scheduler, a.orchestrator, cfg.Admin.AdminSecret, Version, BuildTime, GitCommit)
	apiHandler.RegisterRoutes(r)
	return r
}

func serve(ctx context.Context, cfg *config.Config, a *app) {
	// Metrics endpoint
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = startMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(cfg, a),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting HTTP server", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := a.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Scheduler stopped", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("Import still running at shutdown")
	}

	logger.Info("Server exited")
}

func startMetricsServer(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("Starting metrics server", "address", addr, "path", path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}
