package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/radiusdt/ivt-audit/internal/config"
	"github.com/radiusdt/ivt-audit/internal/database"
	"github.com/radiusdt/ivt-audit/internal/geo"
	"github.com/radiusdt/ivt-audit/internal/httpserver"
	"github.com/radiusdt/ivt-audit/internal/ingest"
	"github.com/radiusdt/ivt-audit/internal/metrics"
	"github.com/radiusdt/ivt-audit/internal/middleware"
	"github.com/radiusdt/ivt-audit/internal/reporting"
	"github.com/radiusdt/ivt-audit/internal/storage"
	"go.uber.org/zap"
)

const usage = `usage: ivt-audit <command> [flags]

commands:
  serve    run the HTTP report API
  import   load a vendor CSV export into the event store
  report   print the traffic report
  export   write every report view as CSV files
  roi      price the invalid paid traffic
  verify   check the event table schema
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	run, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		os.Exit(1)
	}

	err = run(ctx, a, args)
	a.Close()
	if err != nil {
		logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// app holds the wired dependencies shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	store    storage.EventStore
	cache    storage.ReportCache
	resolver *geo.Resolver
	health   map[string]httpserver.HealthCheck

	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewMetrics(cfg.Metrics.Namespace, nil),
		health:  make(map[string]httpserver.HealthCheck),
	}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	// Redis is optional: without it every report is built from a fresh scan.
	if cfg.Redis.Addr != "" {
		rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis not available, report caching disabled", zap.Error(err))
		} else {
			a.closers = append(a.closers, func() { rdb.Close() })
			a.cache = storage.NewRedisReportCache(rdb.Client, cfg.Redis.CacheTTL)
			a.health["redis"] = rdb.Health
		}
	}

	if cfg.Geo.Enabled {
		provider, err := geo.NewMaxMindASNProvider(cfg.Geo.DatabasePath)
		if err != nil {
			logger.Warn("ASN database not available, enrichment disabled", zap.Error(err))
		} else {
			a.resolver = geo.NewResolver(provider, 0, a.metrics)
			a.closers = append(a.closers, func() { a.resolver.Close() })
			logger.Info("ASN enrichment enabled", zap.String("path", cfg.Geo.DatabasePath))
		}
	}

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := database.NewPostgresDB(ctx, a.cfg.Database, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.health["postgres"] = db.Health
		store, err := storage.NewPostgresEventStore(db.Pool, a.cfg.Store.Table)
		if err != nil {
			return err
		}
		a.store = store

	case config.BackendClickHouse:
		db, err := database.NewClickHouseDB(ctx, a.cfg.ClickHouse, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { db.Close() })
		a.health["clickhouse"] = db.Health
		store, err := storage.NewClickHouseEventStore(db.Conn, a.cfg.Store.Table)
		if err != nil {
			return err
		}
		a.store = store

	default:
		a.logger.Warn("using in-memory event store, events are lost on exit")
		a.store = storage.NewInMemoryEventStore()
	}
	return nil
}

func (a *app) reporting() *reporting.Service {
	limits := reporting.Limits{
		ASN:         a.cfg.Analysis.TopASN,
		Timezones:   a.cfg.Analysis.TopTimezones,
		ThreatTypes: a.cfg.Analysis.TopThreatTypes,
		TopASNs:     a.cfg.Analysis.TopASNChart,
	}
	opts := []reporting.Option{reporting.WithMetrics(a.metrics, a.cfg.Store.Backend)}
	if a.cache != nil {
		opts = append(opts, reporting.WithCache(a.cache))
	}
	return reporting.NewService(a.store, limits, a.logger, opts...)
}

func (a *app) importer() *ingest.Importer {
	opts := []ingest.Option{
		ingest.WithMetrics(a.metrics),
		ingest.WithProgressEvery(a.cfg.Analysis.ImportBatchSize),
	}
	if a.resolver != nil {
		opts = append(opts, ingest.WithResolver(a.resolver))
	}
	if a.cache != nil {
		opts = append(opts, ingest.WithCache(a.cache))
	}
	return ingest.NewImporter(a.store, a.logger, opts...)
}

// ensureSchema creates the event table when the store is backed by one.
func (a *app) ensureSchema(ctx context.Context) error {
	sv, ok := a.store.(storage.SchemaVerifier)
	if !ok {
		return nil
	}
	return sv.EnsureSchema(ctx)
}

// preload imports path before a command runs. It is how the in-memory
// store gets data.
func (a *app) preload(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	if err := a.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := a.importer().ImportFile(ctx, path)
	return err
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
