package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/database"
	"courier/internal/media"
	"courier/internal/queue"
	"courier/internal/retry"
	"courier/internal/service"
	"courier/internal/tracing"
	"courier/pkg/channel"
	"courier/pkg/objectstore"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("Courier %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting courier")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Open the outbox store with exponential backoff so a briefly
	// unavailable database file does not kill the process at boot.
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		MaxAttempts:  cfg.Retry.MaxAttempts,
	})
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to open database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to open database after retries: %w", err)
	}
	defer db.Close()

	fallback, err := queue.New(cfg.Queue.Path, cfg.Queue.MaxReplayAttempts, logger)
	if err != nil {
		return fmt.Errorf("failed to load fallback queue: %w", err)
	}

	apiKey := os.Getenv("COURIER_CHANNEL_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("COURIER_CHANNEL_API_KEY environment variable is required")
	}

	channelTimeout := time.Duration(cfg.Channel.TimeoutSec) * time.Second
	channelClient := channel.NewClient(cfg.Channel.APIBaseURL, apiKey, channelTimeout)
	objectClient := objectstore.NewClient(cfg.ObjectStore.BaseURL, cfg.ObjectStore.Bucket, apiKey, channelTimeout)
	fetcher := media.NewFetcher(channelTimeout)

	dispatcher := service.NewDispatchWorker(db, fallback, channelClient, fetcher, cfg.Dispatch, logger)
	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dispatch worker: %w", err)
	}
	defer dispatcher.Stop()

	flushInterval := time.Duration(cfg.Queue.FlushIntervalSec) * time.Second
	flusher := service.NewFlushWorker(db, objectClient, fallback, flushInterval, logger)
	if err := flusher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start flush worker: %w", err)
	}
	defer flusher.Stop()

	if cfg.Channel.EventsURL != "" {
		inbound := service.NewInboundHandler(db, fallback, objectClient, logger)
		listener := channel.NewEventListener(cfg.Channel.EventsURL, apiKey, inbound, logger)
		if err := listener.Start(ctx); err != nil {
			logger.Warnf("Failed to start channel event listener: %v", err)
		} else {
			defer listener.Stop()
		}
	} else {
		logger.Info("No channel events URL configured, inbound listener disabled")
	}

	server := NewServer(cfg.Server, db, fallback, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
