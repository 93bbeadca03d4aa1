// Package analyzer measures the bundle size of npm packages.
//
// The default strategy downloads a package's files from a CDN into memory,
// bundles them with an in-process engine and measures the minified output.
// The sandbox strategy installs the package with a real package manager and
// reports approximate figures from the published tarball.
package analyzer

import (
	"time"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/bundler"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/sandbox"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/size"
)

// Options configures an Analyzer.
type Options struct {
	// Minifier selects the minification strategy. Empty means fast.
	Minifier bundler.Strategy

	// Debug enables parse-time measurement and verbose warnings.
	// Parse time executes the package's code; see size.GojaEvaluator.
	Debug bool

	// ParseTimeLimit caps a single parse-time evaluation.
	ParseTimeLimit time.Duration

	// CustomImports are subpaths re-exported by a synthesized entry when the
	// package has no usable entry file.
	CustomImports []string

	// UseSandbox requests the sandbox strategy. It fails with
	// types.ErrSandboxUnsupported when the environment is unsupported.
	UseSandbox bool

	// IncludeDependencySizes groups bundle bytes by owning package.
	IncludeDependencySizes bool

	// Concurrency bounds the export-size fan-out.
	Concurrency int

	// OnProgress is called as the analysis moves between stages. It must be
	// safe to call from multiple goroutines.
	OnProgress func(Progress)

	// Bundler defaults to bundler.Shared().
	Bundler *bundler.Bundler

	// Sandbox builds the environment of each sandbox analysis. Defaults
	// to sandbox.Local.
	Sandbox sandbox.Factory

	// Sizes defaults to gzip sizing.
	Sizes *size.Analyzer
}

// DefaultConcurrency bounds the export-size fan-out when unset.
const DefaultConcurrency = 4

// DefaultOptions returns options for a plain CDN analysis.
func DefaultOptions() Options {
	return Options{
		Minifier:       bundler.DefaultStrategy,
		ParseTimeLimit: size.DefaultEvaluationLimit,
		Concurrency:    DefaultConcurrency,
	}
}

// Validate fills unset fields with defaults.
func (o *Options) Validate() error {
	if o.Minifier == "" {
		o.Minifier = bundler.DefaultStrategy
	}
	if _, err := bundler.ParseStrategy(string(o.Minifier)); err != nil {
		return err
	}
	if o.ParseTimeLimit <= 0 {
		o.ParseTimeLimit = size.DefaultEvaluationLimit
	}
	if o.Concurrency < 1 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Bundler == nil {
		o.Bundler = bundler.Shared()
	}
	if o.Sandbox == nil {
		o.Sandbox = sandbox.Local
	}
	if o.Sizes == nil {
		o.Sizes = size.NewAnalyzer(nil)
	}
	return nil
}

// Stage is a step of an analysis.
type Stage string

// Analysis stages in the order they run.
const (
	StageInitializing Stage = "initializing"
	StageResolving    Stage = "resolving"
	StageDownloading  Stage = "downloading"
	StageInstalling   Stage = "installing"
	StageBundling     Stage = "bundling"
	StageMinifying    Stage = "minifying"
	StageMeasuring    Stage = "measuring"
	StageDone         Stage = "done"
)

// Progress reports the stage an analysis reached.
type Progress struct {
	Package string
	Stage   Stage

	// Done and Total count files in the export-size fan-out.
	Done  int
	Total int
}
