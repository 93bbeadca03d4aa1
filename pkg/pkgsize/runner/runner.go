// Package runner executes analysis requests on top of the analyzer, adding
// the result cache, history recording and per-CDN registry clients. The CLI
// uses it in process and pkgsized serves it over its socket.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/analyzer"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/bundler"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/cache"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/config"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/history"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/registry"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/sandbox"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/tuner"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

var logger = logging.Get("runner")

// SourceFactory creates the package source for a CDN.
type SourceFactory func(cdn string, concurrency int, rateLimit float64) (analyzer.Source, error)

// RegistrySource is the default SourceFactory.
func RegistrySource(cdn string, concurrency int, rateLimit float64) (analyzer.Source, error) {
	return registry.New(cdn, registry.WithConcurrency(concurrency), registry.WithRateLimit(rateLimit))
}

// Observer is told about every finished request.
type Observer func(kind history.Kind, duration time.Duration, cached bool, err error)

// Runner runs requests. It is safe for concurrent use.
type Runner struct {
	mu      sync.RWMutex
	cfg     *config.Config
	limits  tuner.OptimalConfig
	sources map[string]analyzer.Source

	newSource SourceFactory
	bundler   *bundler.Bundler
	sandbox   sandbox.Factory
	cache     *cache.Cache
	history   *history.History
	observer  Observer
}

// Option configures a Runner.
type Option func(*Runner)

// WithCache sets the result cache. A nil cache disables caching.
func WithCache(c *cache.Cache) Option {
	return func(r *Runner) { r.cache = c }
}

// WithHistory sets the history recorder. A nil history records nothing.
func WithHistory(h *history.History) Option {
	return func(r *Runner) { r.history = h }
}

// WithSourceFactory replaces the registry client factory.
func WithSourceFactory(f SourceFactory) Option {
	return func(r *Runner) { r.newSource = f }
}

// WithBundler replaces the shared bundler.
func WithBundler(b *bundler.Bundler) Option {
	return func(r *Runner) { r.bundler = b }
}

// WithSandbox replaces the factory that builds sandbox environments.
func WithSandbox(newEnv sandbox.Factory) Option {
	return func(r *Runner) { r.sandbox = newEnv }
}

// WithObserver sets the request observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// New creates a Runner for cfg.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		newSource: RegistrySource,
		bundler:   bundler.Shared(),
		sandbox:   sandbox.Local,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.SetConfig(cfg)
	return r
}

// Open creates a Runner with the cache and history cfg enables.
func Open(cfg *config.Config, opts ...Option) (*Runner, error) {
	limits := tuner.Tuned(cfg.Concurrency, cfg.Cache.MemoryEntries)

	var base []Option
	if cfg.Cache.Enabled {
		c, err := cache.Open(cfg.CachePath(), limits.MemoryEntries)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		base = append(base, WithCache(c))
	}
	if cfg.History.Enabled {
		h, err := history.New(cfg.HistoryPath())
		if err != nil {
			return nil, err
		}
		base = append(base, WithHistory(h))
	}
	return New(cfg, append(base, opts...)...), nil
}

// Close releases the cache.
func (r *Runner) Close() error {
	if r.cache != nil {
		return r.cache.Close()
	}
	return nil
}

// SetConfig swaps the configuration. Registry clients are rebuilt on next use.
func (r *Runner) SetConfig(cfg *config.Config) {
	limits := tuner.Tuned(cfg.Concurrency, cfg.Cache.MemoryEntries)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.limits = limits
	r.sources = make(map[string]analyzer.Source)
}

// Config returns the current configuration.
func (r *Runner) Config() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Cache returns the result cache, or nil.
func (r *Runner) Cache() *cache.Cache {
	return r.cache
}

// History returns the history recorder, or nil.
func (r *Runner) History() *history.History {
	return r.history
}

// Bundler returns the bundler requests share.
func (r *Runner) Bundler() *bundler.Bundler {
	return r.bundler
}

// source returns the registry client for cdn, creating it once per config.
func (r *Runner) source(cdn string) (analyzer.Source, *config.Config, tuner.OptimalConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cdn == "" {
		cdn = r.cfg.CDN
	}
	if s, ok := r.sources[cdn]; ok {
		return s, r.cfg, r.limits, nil
	}
	s, err := r.newSource(cdn, r.limits.FetchWorkers, r.cfg.RateLimit)
	if err != nil {
		return nil, nil, tuner.OptimalConfig{}, err
	}
	r.sources[cdn] = s
	return s, r.cfg, r.limits, nil
}

func (r *Runner) analyzer(req Request, onProgress func(analyzer.Progress)) (*analyzer.Analyzer, error) {
	src, cfg, limits, err := r.source(req.CDN)
	if err != nil {
		return nil, err
	}
	return analyzer.New(src, analyzer.Options{
		Minifier:               bundler.Strategy(req.Minifier),
		Debug:                  req.Debug,
		ParseTimeLimit:         cfg.ParseTimeLimit,
		CustomImports:          req.CustomImports,
		UseSandbox:             req.UseSandbox,
		IncludeDependencySizes: req.IncludeDependencySizes,
		Concurrency:            limits.BundleWorkers,
		OnProgress:             onProgress,
		Bundler:                r.bundler,
		Sandbox:                r.sandbox,
	})
}

// Analyze runs AnalyzePackage for req, serving exact versions from the
// cache when possible. onProgress may be nil.
func (r *Runner) Analyze(ctx context.Context, req Request, onProgress func(analyzer.Progress)) (res *StatsResult, err error) {
	start := time.Now()
	defer func() {
		cached := res != nil && res.Cached
		r.observe(history.KindStats, time.Since(start), cached, err)
	}()

	digest := req.Digest()
	if !req.NoCache && r.cache != nil {
		if stats, ok := r.cache.GetStats(req.Name, req.Version, digest); ok {
			logger.Debug("cache hit", "package", req.Spec())
			res = &StatsResult{Stats: stats, Cached: true, Duration: time.Since(start)}
			r.record(history.FromStats(stats, res.Duration, true))
			return res, nil
		}
	}

	a, err := r.analyzer(req, onProgress)
	if err != nil {
		return nil, types.WrapAnalysis(req.Name, req.Version, err)
	}
	stats, err := a.AnalyzePackage(ctx, req.Name, req.Version)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.PutStats(digest, stats); err != nil {
			logger.Warn("failed to cache result", "package", req.Spec(), "error", err)
		}
	}

	res = &StatsResult{Stats: stats, Duration: time.Since(start)}
	r.record(history.FromStats(stats, res.Duration, false))
	return res, nil
}

// ExportSizes runs GetPackageExportSizes for req with the same caching as
// Analyze.
func (r *Runner) ExportSizes(ctx context.Context, req Request, onProgress func(analyzer.Progress)) (res *ExportsResult, err error) {
	start := time.Now()
	defer func() {
		cached := res != nil && res.Cached
		r.observe(history.KindExports, time.Since(start), cached, err)
	}()

	digest := req.Digest()
	if !req.NoCache && r.cache != nil {
		if exports, ok := r.cache.GetExports(req.Name, req.Version, digest); ok {
			res = &ExportsResult{Exports: exports, Cached: true, Duration: time.Since(start)}
			r.record(history.FromExports(exports, res.Duration, true))
			return res, nil
		}
	}

	a, err := r.analyzer(req, onProgress)
	if err != nil {
		return nil, types.WrapAnalysis(req.Name, req.Version, err)
	}
	exports, err := a.GetPackageExportSizes(ctx, req.Name, req.Version)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.PutExports(digest, exports); err != nil {
			logger.Warn("failed to cache export sizes", "package", req.Spec(), "error", err)
		}
	}

	res = &ExportsResult{Exports: exports, Duration: time.Since(start)}
	r.record(history.FromExports(exports, res.Duration, false))
	return res, nil
}

func (r *Runner) observe(kind history.Kind, d time.Duration, cached bool, err error) {
	if r.observer != nil {
		r.observer(kind, d, cached, err)
	}
}

// record appends to history and prunes it. Failures only log.
func (r *Runner) record(entry history.Entry) {
	if r.history == nil {
		return
	}
	if _, err := r.history.Record(entry); err != nil {
		logger.Warn("failed to record history", "error", err)
		return
	}
	if n, err := r.history.Prune(r.Config().History.Retention); err != nil {
		logger.Warn("failed to prune history", "error", err)
	} else if n > 0 {
		logger.Debug("pruned history", "removed", n)
	}
}
