// Package main is pkgsized, the background analysis daemon. It keeps the
// bundler and the result cache warm and serves analyses to the pkgsize CLI
// over a unix socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/jamesainslie/pkgsize/pkg/daemon"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/config"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/runner"
)

// Set with -ldflags at build time.
var version = "dev"

var logger = logging.Get("pkgsized")

func main() {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "pkgsized",
		Short:         "Background daemon for pkgsize",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgFile)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/pkgsize/config.yaml)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pkgsized: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgFile string) error {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return err
	}

	logOpts, err := cfg.LoggingOptions()
	if err != nil {
		return err
	}
	if err := logging.Init(logOpts); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logging.Close() }()

	socketPath := cfg.SocketPath()
	pidPath := cfg.PIDPath()
	statusPath := daemon.StatusPath(socketPath)

	if daemon.IsDaemonRunning(pidPath) {
		return daemon.ErrDaemonAlreadyRunning
	}
	if err := daemon.RecoverFromStaleDaemon(pidPath, socketPath, cfg.CachePath()); err != nil {
		logger.Warn("stale daemon recovery failed", "error", err)
	}

	fail := func(err error) error {
		if werr := daemon.WriteStatusError(statusPath, err); werr != nil {
			logger.Warn("failed to write status file", "error", werr)
		}
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := daemon.NewMetrics()
	r, err := runner.Open(cfg, runner.WithObserver(metrics.RecordAnalysis))
	if err != nil {
		return fail(fmt.Errorf("failed to open runner: %w", err))
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Warn("failed to close runner", "error", err)
		}
	}()

	configPath := cfgFile
	if configPath == "" {
		if p, err := config.ConfigPath(); err == nil {
			configPath = p
		}
	}

	svc := daemon.NewService(r,
		daemon.WithVersion(version),
		daemon.WithConfigPath(configPath),
		daemon.WithShutdown(stop),
	)
	srv, err := daemon.NewServer(daemon.Config{
		SocketPath: socketPath,
		StateDir:   config.StateDir(),
	}, svc, grpc.UnaryInterceptor(metrics.UnaryInterceptor()))
	if err != nil {
		return fail(fmt.Errorf("failed to create server: %w", err))
	}

	if err := daemon.WritePIDFile(pidPath); err != nil {
		_ = srv.Close()
		return fail(fmt.Errorf("failed to write PID file: %w", err))
	}
	defer func() {
		if err := daemon.RemovePIDFile(pidPath); err != nil {
			logger.Warn("failed to remove PID file", "error", err)
		}
	}()

	if configPath != "" {
		go func() {
			if err := config.Watch(ctx, configPath, r.SetConfig); err != nil {
				logger.Debug("config watch disabled", "path", configPath, "error", err)
			}
		}()
	}

	if addr := cfg.Daemon.MetricsAddr; addr != "" {
		go func() {
			if err := metrics.ServeMetrics(ctx, addr); err != nil {
				logger.Warn("metrics server stopped", "addr", addr, "error", err)
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		metrics.UpdateUptime(svc.StartTime())
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateUptime(svc.StartTime())
			}
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve()
	}()

	if err := daemon.WriteStatusReady(statusPath); err != nil {
		logger.Warn("failed to write status file", "error", err)
	}
	logger.Info("pkgsized started", "socket", socketPath, "pid", os.Getpid(), "version", version)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fail(fmt.Errorf("server error: %w", err))
		}
	}

	if err := srv.Close(); err != nil {
		logger.Warn("error during shutdown", "error", err)
	}
	_ = daemon.RemoveStatus(statusPath)
	return nil
}
