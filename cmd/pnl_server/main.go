package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"pnl_engine/internal/config"
	"pnl_engine/internal/core"
	"pnl_engine/internal/engine"
	"pnl_engine/pkg/concurrency"
	"pnl_engine/pkg/liveserver"
	"pnl_engine/pkg/logging"
	"pnl_engine/pkg/telemetry"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	listenAddr := flag.String("listen", "", "Server address (overrides config)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pnl_server version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting pnl_server",
		"version", version,
		"listen", cfg.Server.ListenAddr,
		"position_mode", string(cfg.Analytics.PositionMode),
	)

	tel, err := telemetry.Setup(context.Background(), telemetry.Options{
		ServiceName: "pnl_engine",
		Version:     version,
	})
	if err != nil {
		logger.Warn("Failed to initialize telemetry", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Telemetry shutdown failed", "error", err)
			}
		}()
	}

	store, err := newStore(cfg)
	if err != nil {
		logger.Error("Failed to open settings store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	eng := engine.NewEngine(cfg.Analytics, store, logger)
	if err := eng.RestoreSettings(context.Background()); err != nil {
		logger.Warn("Failed to restore persisted settings, using configured defaults", "error", err)
	}

	hub := liveserver.NewHub(logger)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "broadcast",
		MaxWorkers:  cfg.Server.BroadcastPoolSize,
		MaxCapacity: cfg.Server.BroadcastPoolBuffer,
		NonBlocking: true,
	}, logger)
	defer pool.Stop()

	broadcaster := NewBroadcaster(hub, eng, pool, cfg.Server.SnapshotsPerSecond, logger)

	ingest := func(msg core.Message) error {
		update, err := eng.ProcessMessage(context.Background(), msg)
		if err != nil {
			return err
		}
		broadcaster.Publish(update)
		return nil
	}

	server := liveserver.NewServer(hub, logger, []string{"*"}, ingest)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return server.Start(ctx, cfg.Server.ListenAddr)
	})
	g.Go(func() error {
		return broadcaster.Run(ctx)
	})
	if cfg.Telemetry.EnableMetrics {
		g.Go(func() error {
			return runMetricsServer(ctx, cfg.Telemetry.MetricsPort, logger)
		})
	}

	logger.Info("pnl_server is running",
		"feed_url", fmt.Sprintf("ws://localhost%s/feed", cfg.Server.ListenAddr),
		"stream_url", fmt.Sprintf("ws://localhost%s/ws", cfg.Server.ListenAddr),
		"health_url", fmt.Sprintf("http://localhost%s/health", cfg.Server.ListenAddr),
	)

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("pnl_server stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("pnl_server stopped")
}

func newStore(cfg *config.Config) (engine.SettingsStore, error) {
	if cfg.Store.Type == "sqlite" {
		return engine.NewSQLiteStore(cfg.Store.Path)
	}
	return engine.NewMemoryStore(), nil
}

// runMetricsServer exposes the Prometheus registry on a dedicated port,
// separate from the subscriber-facing live server.
func runMetricsServer(ctx context.Context, port int, logger core.ILogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	logger.Info("Starting metrics server", "port", port)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
