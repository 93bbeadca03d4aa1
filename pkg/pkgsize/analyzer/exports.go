package analyzer

import (
	"context"
	"path"
	"strings"
	"sync/atomic"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/bundler"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/fanout"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/vfs"
)

// exportExtensions are the files measured by GetPackageExportSizes.
var exportExtensions = map[string]bool{".js": true, ".mjs": true, ".ts": true}

// ExportCandidates returns the script files of desc that are measured as
// standalone exports.
func ExportCandidates(desc *types.PackageDescriptor) []string {
	var out []string
	for _, f := range desc.Files {
		if f.IsFile() && exportExtensions[path.Ext(f.Path)] {
			out = append(out, f.Path)
		}
	}
	return out
}

// ExportName is the file name without its extension.
func ExportName(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// GetPackageExportSizes bundles and minifies every script file of
// name@version on its own. A file that fails is dropped. Asset order is
// unspecified.
func (a *Analyzer) GetPackageExportSizes(ctx context.Context, name, version string) (*types.PackageExportSizes, error) {
	sizes, err := a.exportSizes(ctx, name, version)
	if err != nil {
		return nil, types.WrapAnalysis(name, version, err)
	}
	return sizes, nil
}

func (a *Analyzer) exportSizes(ctx context.Context, name, version string) (*types.PackageExportSizes, error) {
	spec := types.FormatSpec(name, version)

	a.progress(spec, StageInitializing)
	if err := a.opts.Bundler.Init(ctx); err != nil {
		return nil, err
	}

	a.progress(spec, StageResolving)
	desc, err := a.source.GetPackageInfo(ctx, name, version)
	if err != nil {
		return nil, err
	}

	a.progress(spec, StageDownloading)
	files := a.source.DownloadFiles(ctx, desc)

	candidates := ExportCandidates(desc)
	total := len(candidates)
	var done atomic.Int32

	results := fanout.Map(ctx, candidates, a.opts.Concurrency, func(ctx context.Context, p string) (types.ExportSize, error) {
		defer func() {
			if a.opts.OnProgress != nil {
				a.opts.OnProgress(Progress{Package: spec, Stage: StageBundling, Done: int(done.Add(1)), Total: total})
			}
		}()
		return a.exportSize(ctx, p, files)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, r := range fanout.Failures(results) {
		if a.opts.Debug {
			logger.Warn("export skipped", "package", spec, "path", candidates[r.Index], "error", r.Err)
		} else {
			logger.Debug("export skipped", "package", spec, "path", candidates[r.Index], "error", r.Err)
		}
	}

	assets := fanout.Successes(results)
	if assets == nil {
		assets = []types.ExportSize{}
	}

	a.progress(spec, StageDone)
	return &types.PackageExportSizes{Name: desc.Name, Version: desc.Version, Assets: assets}, nil
}

func (a *Analyzer) exportSize(ctx context.Context, p string, files *vfs.FileSet) (types.ExportSize, error) {
	result, err := a.opts.Bundler.Bundle(ctx, bundler.FileEntry(p), files)
	if err != nil {
		return types.ExportSize{}, err
	}
	minified := a.opts.Bundler.MinifyCode(ctx, result.Code, a.opts.Minifier)
	return types.ExportSize{
		Path:       p,
		Size:       a.opts.Sizes.Size(minified),
		GzipSize:   a.opts.Sizes.CompressedSize(minified),
		ExportName: ExportName(p),
	}, nil
}
