package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lanops/cachewatch/internal/config"
	"github.com/lanops/cachewatch/internal/logging"
	"github.com/lanops/cachewatch/internal/pipeline"
	"github.com/lanops/cachewatch/internal/server"
	"github.com/lanops/cachewatch/internal/stats"
)

const defaultConfigPath = "/etc/cachewatch/config.yaml"

var (
	configPath  = flag.String("config", "", "Path to configuration file (default "+defaultConfigPath+" if present; CACHEWATCH_* env vars apply either way)")
	showVersion = flag.Bool("version", false, "Print version and exit")
	version     = "dev" // Set via ldflags: -X main.version=v1.0.0
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("cachewatchd version", version)
		os.Exit(0)
	}

	// Optional .env for container and dev runs; absence is fine.
	_ = godotenv.Load()

	// Without -config, pick up the system config only when it exists so
	// env-only container deployments keep working.
	path := *configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Pretty)
	logger.Info().Str("version", version).Msg("cachewatchd starting")
	logger.Info().
		Str("path", cfg.Log.Path).
		Str("format", cfg.Log.Format).
		Str("mode", cfg.Tail.Mode).
		Str("start_at", cfg.Tail.StartAt).
		Msg("watching access log")

	// Root context canceled on SIGINT/SIGTERM.
	ctx, cancel := signalContext()

	store := config.NewStore(cfg)

	var watcherStop func()
	if path != "" {
		watcherStop, err = config.WatchFile(path, store, logging.Component(logger, "config"))
		if err != nil {
			logger.Warn().Err(err).Msg("config watcher disabled")
		}
	}

	agg := stats.New(cfg.Stats.RecentWindow, cfg.Stats.MaxClients)

	if err := pipeline.Start(ctx, cfg, store, logging.Component(logger, "pipeline"), agg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start log pipeline: %v\n", err)
		cancel()
		os.Exit(1)
	}

	var wg sync.WaitGroup

	reporter := stats.NewReporter(agg, store, logging.Component(logger, "stats"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	srv := server.New(cfg.Metrics.Listen, agg, logging.Component(logger, "server"))
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start metrics server: %v\n", err)
		cancel()
		os.Exit(1)
	}
	logger.Info().Str("listen", cfg.Metrics.Listen).Msg("metrics server listening")

	// Block until shutdown signal.
	<-ctx.Done()
	logger.Info().Msg("shutting down")

	if watcherStop != nil {
		watcherStop()
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown")
	}
	shutCancel()

	wg.Wait()
	cancel()
	logger.Info().Msg("shutdown complete")
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
