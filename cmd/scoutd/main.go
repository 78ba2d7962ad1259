// Scoutd is a session-scoped preference learning daemon for candidate
// sourcing.
//
// It learns reviewer preferences from feedback within a session,
// applies them to candidate scoring, and promotes durable patterns
// across sessions.
//
// Usage:
//
//	# Start with defaults
//	scoutd serve
//
//	# Start with a config file
//	scoutd serve --config scoutd.yaml
//
//	# Configure via environment
//	SCOUTD_SERVER_PORT=9180 scoutd serve
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/scoutd/internal/config"
	scouthttp "github.com/fyrsmithlabs/scoutd/internal/http"
	"github.com/fyrsmithlabs/scoutd/internal/learning"
	"github.com/fyrsmithlabs/scoutd/internal/logging"
	"github.com/fyrsmithlabs/scoutd/internal/preference"
	"github.com/fyrsmithlabs/scoutd/internal/provider"
	"github.com/fyrsmithlabs/scoutd/internal/reliability"
	"github.com/fyrsmithlabs/scoutd/internal/storage"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scoutd",
	Short: "Session-scoped preference learning daemon",
	Long: `scoutd learns reviewer preferences from candidate feedback within a
session, applies them to candidate scoring in real time, and carries
high-confidence patterns across sessions as durable user profiles.`,
	Version: fmt.Sprintf("%s (%s)", version, gitCommit),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scoutd HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.AddCommand(serveCmd)
}

// run wires the daemon and blocks until the context is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	zl := logger.Zap()
	defer zl.Sync() //nolint:errcheck // stderr sync failure is unactionable

	zl.Info("starting scoutd",
		zap.String("version", version),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("providers", len(cfg.Providers)))

	// Durable store
	var store storage.Store
	switch cfg.Storage.Backend {
	case "memory":
		store = storage.NewMemoryStore()
	default:
		store, err = storage.NewBadgerStore(cfg.Storage.Path, zl)
		if err != nil {
			return fmt.Errorf("opening storage at %s: %w", cfg.Storage.Path, err)
		}
	}
	defer func() {
		if err := store.Close(); err != nil {
			zl.Warn("storage close failed", zap.Error(err))
		}
	}()

	// AI providers behind the reliability layer. Zero providers is a
	// valid deployment: extraction falls back to heuristics.
	var reasoner provider.Reasoner
	if len(cfg.Providers) > 0 {
		executor := reliability.NewExecutor(cfg.Reliability, zl)
		reasoners := make([]provider.Reasoner, 0, len(cfg.Providers))
		for _, pc := range cfg.Providers {
			r, err := provider.New(pc)
			if err != nil {
				return fmt.Errorf("initializing provider %s: %w", pc.Name, err)
			}
			reasoners = append(reasoners, r)
		}
		reasoner, err = provider.NewFailover(reasoners, executor, zl)
		if err != nil {
			return fmt.Errorf("initializing failover: %w", err)
		}
	} else {
		zl.Warn("no AI providers configured, pattern extraction will use heuristics only")
	}

	// Services
	prefSvc, err := preference.NewService(store, zl,
		preference.WithPromotionFloor(cfg.Learning.PromotionConfidence))
	if err != nil {
		return fmt.Errorf("initializing preference service: %w", err)
	}

	sessions, err := learning.NewSessionStore(store, zl,
		learning.WithIdleWindow(cfg.Session.IdleWindow.Duration()),
		learning.WithWarmStartSource(prefSvc),
		learning.WithConfidenceFloors(cfg.Learning.MinConfidence, cfg.Learning.WarmStartConfidence))
	if err != nil {
		return fmt.Errorf("initializing session store: %w", err)
	}

	extractor := learning.NewExtractor(reasoner, cfg.Learning.MinConfidence, zl,
		learning.WithExtractionBudget(cfg.Reliability.Timeout.Duration()))

	learningSvc, err := learning.NewService(sessions, extractor, prefSvc, zl)
	if err != nil {
		return fmt.Errorf("initializing learning service: %w", err)
	}

	sweeper := learning.NewSweeper(learningSvc, cfg.Session.SweepInterval.Duration(), zl)
	sweeper.Start()
	defer sweeper.Stop()

	// HTTP server
	server, err := scouthttp.NewServer(learningSvc, prefSvc, logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
