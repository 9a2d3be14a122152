package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/tinyweb/internal/logger"
	"github.com/marmos91/tinyweb/pkg/config"
	"github.com/marmos91/tinyweb/pkg/server"
	"github.com/marmos91/tinyweb/pkg/store/credential"
	"github.com/spf13/cobra"
)

// startFlags mirror the classic single-letter switches. Only flags the
// user actually set override the loaded configuration.
var startFlags struct {
	port        int
	triggerMode int
	linger      int
	readPool    int
	workers     int
	closeLog    int
	asyncLog    int
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the HTTP server",
	Example: `  # Start with the default config
  tinyweb start

  # Level-triggered connections, edge-triggered listener, 8 workers
  tinyweb start -p 9006 -m 2 -t 8

  # Asynchronous logging with graceful close on every socket
  tinyweb start -l 1 -o 1`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	f := startCmd.Flags()
	f.IntVarP(&startFlags.port, "port", "p", config.DefaultHTTPPort, "Listening port (1024-65535)")
	f.IntVarP(&startFlags.triggerMode, "trigger-mode", "m", config.DefaultTriggerMode, "Trigger mode: 0 LT+LT, 1 LT listen+ET conn, 2 ET listen+LT conn, 3 ET+ET")
	f.IntVarP(&startFlags.linger, "linger", "o", 0, "Graceful close with SO_LINGER: 0 off, 1 on")
	f.IntVarP(&startFlags.readPool, "read-pool", "s", config.DefaultReadPoolSize, "Credential store read pool size")
	f.IntVarP(&startFlags.workers, "workers", "t", 8, "Worker pool size")
	f.IntVarP(&startFlags.closeLog, "close-log", "c", 0, "Disable logging: 0 keep, 1 close")
	f.IntVarP(&startFlags.asyncLog, "log-mode", "l", 0, "Log write mode: 0 synchronous, 1 asynchronous")
}

// applyStartFlags copies explicitly set flags onto cfg.
func applyStartFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Adapters.HTTP.Port = startFlags.port
	}
	if f.Changed("trigger-mode") {
		cfg.Adapters.HTTP.TriggerMode = startFlags.triggerMode
	}
	if f.Changed("linger") {
		cfg.Adapters.HTTP.Linger = startFlags.linger == 1
	}
	if f.Changed("read-pool") {
		cfg.Credentials.ReadPoolSize = startFlags.readPool
	}
	if f.Changed("workers") {
		cfg.Adapters.HTTP.Workers = startFlags.workers
	}
	if f.Changed("close-log") {
		cfg.Logging.Disabled = startFlags.closeLog == 1
	}
	if f.Changed("log-mode") {
		cfg.Logging.Async = startFlags.asyncLog == 1
	}
	return config.Validate(cfg)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := applyStartFlags(cmd, cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if err := logger.Configure(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Async:     cfg.Logging.Async,
		QueueSize: cfg.Logging.QueueSize,
		Disabled:  cfg.Logging.Disabled,
	}); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("TinyWeb %s starting", Version)

	// Metrics first: the store factories pick up the registry.
	metricsResult := config.InitializeMetrics(cfg)

	contentStore, err := config.CreateContentStore(ctx, &cfg.Content)
	if err != nil {
		return err
	}
	defer func() { _ = contentStore.Close() }()
	logger.Info("Content store: %s", cfg.Content.Type)

	credStore, err := config.CreateCredentialStore(ctx, &cfg.Credentials)
	if err != nil {
		return err
	}
	defer func() { _ = credStore.Close() }()
	logger.Info("Credential store: %s (read pool %d)", cfg.Credentials.Type, cfg.Credentials.ReadPoolSize)

	accounts := credential.NewAuthenticator(credStore, cfg.Credentials.BcryptCost)

	adapters, err := config.CreateAdapters(cfg, metricsResult.HTTPMetrics)
	if err != nil {
		return err
	}

	srv := server.New(contentStore, accounts)
	srv.SetStopTimeout(cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	h := cfg.Adapters.HTTP
	logger.Info("HTTP: port=%d trigger_mode=%d linger=%v workers=%d max_connections=%d idle_timeout=%v",
		h.Port, h.TriggerMode, h.Linger, h.Workers, h.MaxConnections, h.IdleTimeout)

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
