package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/jamesainslie/pkgsize/pkg/client"
	"github.com/jamesainslie/pkgsize/pkg/daemon"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/analyzer"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/config"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/runner"
)

// connectTimeout bounds the dial to a running daemon.
const connectTimeout = 2 * time.Second

// backend runs analyses through pkgsized when it is reachable and
// in-process otherwise.
type backend struct {
	cfg    *config.Config
	client *client.Client
	runner *runner.Runner
}

// openBackend connects to the daemon unless --no-daemon is set, starting
// it first when daemon.auto_start is on. Any failure to reach it falls
// back to an in-process runner.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{cfg: cfg}

	if !viper.GetBool("no_daemon") {
		paths := client.PathsFromConfig(cfg)
		if cfg.Daemon.AutoStart && !client.IsDaemonRunning(paths.PID) {
			printVerbose("starting pkgsized")
			if err := client.StartDaemon(paths); err != nil {
				printVerbose("daemon auto-start failed: %v", err)
			}
		}

		if client.IsDaemonRunning(paths.PID) {
			dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
			c, err := client.ConnectWithContext(dialCtx, paths.Socket)
			cancel()
			if err == nil {
				printVerbose("using pkgsized at %s", paths.Socket)
				b.client = c
				return b, nil
			}
			printVerbose("daemon unavailable: %v", err)
		} else {
			printVerbose("daemon not running, analyzing in-process")
		}
	}

	if err := b.openRunner(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *backend) openRunner() error {
	r, err := runner.Open(b.cfg)
	if err != nil {
		return fmt.Errorf("failed to open analyzer: %w", err)
	}
	b.runner = r
	return nil
}

// fallback drops the daemon connection after it went away mid-session.
func (b *backend) fallback() error {
	printVerbose("lost connection to pkgsized, analyzing in-process")
	_ = b.client.Close()
	b.client = nil
	return b.openRunner()
}

// UsesDaemon reports whether requests currently go to pkgsized.
func (b *backend) UsesDaemon() bool {
	return b.client != nil
}

// Close releases the daemon connection or the in-process runner.
func (b *backend) Close() error {
	var errs []error
	if b.client != nil {
		errs = append(errs, b.client.Close())
	}
	if b.runner != nil {
		errs = append(errs, b.runner.Close())
	}
	return errors.Join(errs...)
}

// Analyze measures one package. On the daemon, progress arrives over its
// progress stream.
func (b *backend) Analyze(ctx context.Context, req runner.Request, onProgress func(analyzer.Progress)) (*runner.StatsResult, error) {
	if b.client != nil {
		res, err := b.client.AnalyzeWithProgress(ctx, req, onProgress)
		if !errors.Is(err, client.ErrUnavailable) {
			return res, err
		}
		if err := b.fallback(); err != nil {
			return nil, err
		}
	}
	return b.runner.Analyze(ctx, req, onProgress)
}

// ExportSizes measures every export of one package and applies opts.
// Total is the export count before filtering.
func (b *backend) ExportSizes(ctx context.Context, req runner.Request, opts daemon.FilterOptions, onProgress func(analyzer.Progress)) (*daemon.ExportSizesResponse, error) {
	f, err := opts.Build()
	if err != nil {
		return nil, err
	}

	if b.client != nil {
		res, err := b.client.ExportSizesWithProgress(ctx, req, opts, onProgress)
		if !errors.Is(err, client.ErrUnavailable) {
			return res, err
		}
		if err := b.fallback(); err != nil {
			return nil, err
		}
	}

	res, err := b.runner.ExportSizes(ctx, req, onProgress)
	if err != nil {
		return nil, err
	}

	exports := *res.Exports
	total := len(exports.Assets)
	exports.Assets = f.Apply(exports.Assets)
	res.Exports = &exports
	return &daemon.ExportSizesResponse{ExportsResult: *res, Total: total}, nil
}
