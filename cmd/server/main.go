// Package main is the entry point for the model registry server binary.
// It dispatches four subcommands (serve, migrate, export-manifests and version) via a
// switch on os.Args so the binary's CLI surface is readable in one place. The serve
// command runs migrations on startup so freshly deployed containers never need a
// separate migration step.
//
// Prometheus metrics and pprof are served on dedicated side ports, never on the API
// listener.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- served only on the internal profiling port
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/model-registry/model-registry/internal/api"
	"github.com/model-registry/model-registry/internal/audit"
	"github.com/model-registry/model-registry/internal/config"
	"github.com/model-registry/model-registry/internal/db"
	"github.com/model-registry/model-registry/internal/jobs"
	"github.com/model-registry/model-registry/internal/storage"
	"github.com/model-registry/model-registry/internal/telemetry"

	// Import storage backends to register them
	_ "github.com/model-registry/model-registry/internal/storage/azure"
	_ "github.com/model-registry/model-registry/internal/storage/gcs"
	_ "github.com/model-registry/model-registry/internal/storage/local"
	_ "github.com/model-registry/model-registry/internal/storage/s3"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("Model Registry %s\n", api.Version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down|force VERSION>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2:])
	case "export-manifests":
		return exportManifests(cfg)
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, export-manifests, version", command)
	}
}

// deps bundles what serve and export-manifests both need
type deps struct {
	db      *sql.DB
	store   storage.Storage
	shipper *audit.MultiShipper
	svc     *api.Services
}

func (rt *deps) Close() {
	if rt.shipper != nil {
		if err := rt.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	rt.db.Close()
}

func setup(cfg *config.Config) (*deps, error) {
	database, err := db.Connect(context.Background(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("connected to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port, "name", cfg.Database.Name)

	store, err := storage.NewStorage(cfg)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	shipper, err := audit.NewMultiShipper(cfg.Audit)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}

	rt := &deps{db: database, store: store, shipper: shipper}
	rt.svc = api.NewServices(cfg, database, store, rt.auditShipper())
	return rt, nil
}

// auditShipper returns nil when no shipper is enabled; a typed nil would defeat
// the nil checks of the recorder and the audit middleware
func (rt *deps) auditShipper() audit.Shipper {
	if rt.shipper == nil || rt.shipper.Len() == 0 {
		return nil
	}
	return rt.shipper
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	rt, err := setup(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	slog.Info("running database migrations")
	if err := db.RunMigrations(rt.db, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(rt.db); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema version", "version", version, "dirty", dirty)
	}

	if !cfg.Auth.AdminConfigured() {
		slog.Warn("no admin token configured; /v1/admin accepts admin users' API keys only")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	telemetry.StartDBStatsCollector(ctx, rt.db, 30*time.Second)
	startSidePorts(cfg)

	router, bgServices, err := api.NewRouter(cfg, rt.db, rt.store, rt.auditShipper(), rt.svc)
	if err != nil {
		return err
	}

	var exportJob *jobs.ManifestExportJob
	if cfg.Registry.ManifestExport.Enabled {
		exportJob = jobs.NewManifestExportJob(rt.svc.Models, rt.svc.Catalog, rt.store, cfg.Registry.ManifestExport.Prefix)
		exportJob.Start(ctx, cfg.Registry.ManifestExport.Interval)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"base_url", cfg.Server.BaseURL,
			"storage", cfg.Storage.DefaultBackend,
			"tls", cfg.Security.TLS.Enabled)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	if exportJob != nil {
		exportJob.Stop()
	}
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

// startSidePorts serves /metrics and pprof on their own ports so neither is
// reachable through the public API ingress path.
func startSidePorts(cfg *config.Config) {
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	if cfg.Telemetry.Profiling.Enabled {
		pprofAddr := fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port)
		go func() {
			slog.Info("starting pprof server", "addr", pprofAddr)
			srv := &http.Server{ // #nosec G112 -- internal-only pprof port
				Addr:         pprofAddr,
				Handler:      http.DefaultServeMux,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("pprof server error", "error", err)
			}
		}()
	}
}

// exportManifests runs the manifest export once and exits
func exportManifests(cfg *config.Config) error {
	rt, err := setup(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	job := jobs.NewManifestExportJob(rt.svc.Models, rt.svc.Catalog, rt.store, cfg.Registry.ManifestExport.Prefix)
	res, err := job.RunOnce(context.Background())
	if err != nil {
		return fmt.Errorf("manifest export failed: %w", err)
	}
	slog.Info("manifest export finished", "exported", res.Exported, "failed", res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d manifests failed to export", res.Failed)
	}
	return nil
}

// runMigrations handles "migrate up", "migrate down" (one step) and "migrate force VERSION".
// force clears a dirty flag left by an interrupted migration.
func runMigrations(cfg *config.Config, args []string) error {
	database, err := db.Connect(context.Background(), cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if args[0] == "force" {
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate force VERSION")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid migration version %q: %w", args[1], err)
		}
		if err := db.ForceMigrationVersion(database, version); err != nil {
			return err
		}
	} else {
		slog.Info("running migrations", "direction", args[0])
		if err := db.RunMigrations(database, args[0]); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", version, "dirty", dirty)
	return nil
}
