package analyzer

import (
	"context"
	"sort"
	"time"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/composition"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/registry"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/size"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/vfs"
)

var logger = logging.Get("analyzer")

// Source provides package manifests and files. *registry.Client
// implements it.
type Source interface {
	GetPackageInfo(ctx context.Context, name, version string) (*types.PackageDescriptor, error)
	DownloadFiles(ctx context.Context, desc *types.PackageDescriptor) *vfs.FileSet
	ResolveMainFile(ctx context.Context, desc *types.PackageDescriptor) (registry.MainFile, error)
}

var _ Source = (*registry.Client)(nil)

// Analyzer runs package analyses. It is safe for concurrent use.
type Analyzer struct {
	source Source
	opts   Options
}

// New returns an Analyzer reading packages from source.
func New(source Source, opts Options) (*Analyzer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{source: source, opts: opts}, nil
}

// Options returns the validated options.
func (a *Analyzer) Options() Options {
	return a.opts
}

func (a *Analyzer) progress(pkg string, stage Stage) {
	if a.opts.OnProgress != nil {
		a.opts.OnProgress(Progress{Package: pkg, Stage: stage})
	}
}

// AnalyzePackage measures name@version. An empty version is the latest.
// Errors are *types.AnalysisError wrapping the cause.
func (a *Analyzer) AnalyzePackage(ctx context.Context, name, version string) (*types.PackageStats, error) {
	stats, err := a.analyzePackage(ctx, name, version)
	if err != nil {
		return nil, types.WrapAnalysis(name, version, err)
	}
	return stats, nil
}

func (a *Analyzer) analyzePackage(ctx context.Context, name, version string) (*types.PackageStats, error) {
	spec := types.FormatSpec(name, version)

	a.progress(spec, StageInitializing)
	if err := a.opts.Bundler.Init(ctx); err != nil {
		return nil, err
	}

	if a.opts.UseSandbox {
		return a.analyzeSandbox(ctx, name, version)
	}
	return a.analyzeCDN(ctx, name, version)
}

func (a *Analyzer) analyzeCDN(ctx context.Context, name, version string) (*types.PackageStats, error) {
	spec := types.FormatSpec(name, version)
	log := logger.With("package", spec)

	a.progress(spec, StageResolving)
	desc, err := a.source.GetPackageInfo(ctx, name, version)
	if err != nil {
		return nil, err
	}

	a.progress(spec, StageDownloading)
	files := a.source.DownloadFiles(ctx, desc)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entry, err := a.selectEntry(ctx, desc, files)
	if err != nil {
		return nil, err
	}
	log.Debug("entry selected", "entry", entry.Path, "synthetic", entry.Contents != nil)

	a.progress(spec, StageBundling)
	result, err := a.opts.Bundler.Bundle(ctx, entry, files)
	if err != nil {
		return nil, err
	}

	a.progress(spec, StageMinifying)
	minified := a.opts.Bundler.MinifyCode(ctx, result.Code, a.opts.Minifier)

	a.progress(spec, StageMeasuring)
	raw := a.opts.Sizes.Size(minified)
	gzip := a.opts.Sizes.CompressedSize(minified)

	stats := &types.PackageStats{
		Name:             desc.Name,
		Version:          desc.Version,
		Size:             raw,
		GzipSize:         gzip,
		UnminifiedSize:   result.Size,
		DependencyCount:  len(desc.Dependencies),
		Flags:            desc.Flags(),
		PeerDependencies: peerDependencies(desc),
		Assets:           []types.Asset{{Name: "main", Type: "js", Size: raw, GzipSize: gzip}},
		Modules:          result.Modules,
		Measurement:      types.Measured,
		Strategy:         types.StrategyCDN,
		AnalyzedAt:       time.Now(),
	}
	if a.opts.IncludeDependencySizes {
		stats.DependencySizes = composition.DependencySizes(desc.Name, result.Modules)
	}
	if a.opts.Debug {
		if elapsed, ok := a.parseTime(ctx, minified); ok {
			stats.ParseTime = &elapsed
		}
	}

	a.progress(spec, StageDone)
	log.Info("package analyzed", "size", raw, "gzip", gzip, "modules", len(result.Modules))
	return stats, nil
}

// parseTime evaluates code in a disposable runtime. It runs package code,
// so it is only reached in debug mode. Conversion to CommonJS happens
// before the clock starts.
func (a *Analyzer) parseTime(ctx context.Context, code string) (time.Duration, bool) {
	script, err := a.opts.Bundler.ToCommonJS(ctx, code)
	if err != nil {
		logger.Debug("commonjs conversion failed, evaluating as is", "error", err)
		script = code
	}
	sizes := &size.Analyzer{Evaluator: &size.GojaEvaluator{Limit: a.opts.ParseTimeLimit}}
	return sizes.ParseTime(script)
}

// peerDependencies returns the sorted peer dependency names, never nil.
func peerDependencies(desc *types.PackageDescriptor) []string {
	out := make([]string, 0, len(desc.PeerDependencies))
	for name := range desc.PeerDependencies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

