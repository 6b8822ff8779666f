package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unibox/internal/config"
	"unibox/internal/constants"
	"unibox/internal/database"
	"unibox/internal/events"
	"unibox/internal/features"
	"unibox/internal/models"
	"unibox/internal/retry"
	"unibox/internal/service"
	"unibox/internal/tracing"

	"github.com/sirupsen/logrus"
)

var (
	// Overridden at release build time through -ldflags.
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	verbose    = flag.Bool("verbose", false, "log at debug level, including raw customer identifiers")
	configPath = flag.String("config", "config.json", "path to the JSON configuration file")
	version    = flag.Bool("version", false, "print version information and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("unibox %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.WithError(err).Fatal("unibox exited")
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"commit":  GitCommit,
		"built":   BuildTime,
	}).Info("Starting unibox")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevel(logger, cfg.LogLevel)

	// The log level follows the file from here on. Everything else read from
	// cfg is fixed until restart.
	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.OnConfigChange(func(next *models.Config) {
		applyLogLevel(logger, next.LogLevel)
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher disabled")
		}
	}()

	// Feature flags load before anything consults them.
	features.Initialize()
	features.GetGlobalManager().LoadFromEnvironment()

	stopTracing := setupTracing(ctx, cfg, logger)
	defer stopTracing()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := service.NewChannelRegistry(db, logger)
	if err := registry.Load(ctx); err != nil {
		return fmt.Errorf("failed to load channel catalog: %w", err)
	}
	logger.WithField("channels", registry.Len()).Info("Channel catalog loaded")

	var eventHub *events.Hub
	var publisher service.EventPublisher
	if cfg.Events.Enabled && features.IsEnabled(features.FlagEventStream) {
		eventHub = events.NewHub(cfg.Events.BufferSize, logger)
		publisher = eventHub
		go eventHub.Run(ctx)
		logger.Info("Event stream hub started")
	}

	msgService := service.NewMessageService(db, registry, publisher, cfg.Ingest.OperatorIdentity, logger)
	analyticsService := service.NewAnalyticsService(db, logger)

	historyEnabled := cfg.History.Enabled && features.IsEnabled(features.FlagHistoryRecording)
	historyService := service.NewHistoryService(db, historyEnabled, logger)

	scheduler := service.NewScheduler(db, cfg.RetentionDays, cfg.History.CleanupIntervalSec, logger)
	go scheduler.Start(ctx)

	srv := NewServer(cfg, msgService, analyticsService, historyService, eventHub, logger)
	errCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	logger.Info("Server stopped cleanly")
	return nil
}

// applyLogLevel caps logging at info unless the -verbose flag was given.
// Debug output carries raw customer identifiers, so the config file alone
// cannot enable it.
func applyLogLevel(logger *logrus.Logger, configured string) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled, raw identifiers will appear in logs")
		return
	}

	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Unknown log level %q, using info", configured)
		level = logrus.InfoLevel
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// setupTracing initializes the OpenTelemetry pipeline and returns its
// shutdown func. Init failures leave tracing disabled rather than
// aborting startup.
func setupTracing(ctx context.Context, cfg *models.Config, logger *logrus.Logger) func() {
	tc := tracing.FromTracingConfig(cfg.Tracing, Version)
	if !features.IsEnabled(features.FlagDistributedTracing) {
		tc.Enabled = false
	}

	manager := tracing.NewTracingManager(tc, logger)
	if err := manager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	return func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}
}

// openDatabase retries startup failures so a short-lived SQLite lock from
// a previous instance does not kill the process.
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	policy := retry.FromRetryConfig(cfg.Retry)
	policy.MaxAttempts = constants.DefaultDatabaseRetryAttempts

	var db *database.Database
	err := retry.NewBackoff(policy).Retry(ctx, func() error {
		var openErr error
		db, openErr = database.New(cfg.Database.Path)
		if openErr != nil {
			logger.Warnf("Failed to initialize database: %v", openErr)
		}
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}
