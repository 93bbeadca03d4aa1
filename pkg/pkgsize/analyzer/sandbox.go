package analyzer

import (
	"context"
	"time"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/sandbox"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/size"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// analyzeSandbox installs the package in the sandbox environment. Sizes
// are the published tarball's, not a bundle's, so the result is labeled
// approximate. Dependency count and flags come from the installed manifest.
func (a *Analyzer) analyzeSandbox(ctx context.Context, name, version string) (*types.PackageStats, error) {
	spec := types.FormatSpec(name, version)

	var inst *sandbox.Installation
	err := sandbox.WithEnvironment(ctx, a.opts.Sandbox, func(env sandbox.Environment) error {
		a.progress(spec, StageInstalling)
		var err error
		inst, err = sandbox.Install(ctx, env, name, version)
		return err
	})
	if err != nil {
		return nil, err
	}

	desc := &inst.Descriptor
	raw := inst.UnpackedSize
	gzip := inst.PackedSize
	if gzip <= 0 {
		gzip = size.Estimate(raw)
	}

	a.progress(spec, StageDone)
	logger.Info("package installed", "package", spec, "unpacked", raw, "packed", gzip)

	return &types.PackageStats{
		Name:             desc.Name,
		Version:          desc.Version,
		Size:             raw,
		GzipSize:         gzip,
		DependencyCount:  len(desc.Dependencies),
		Flags:            desc.Flags(),
		PeerDependencies: peerDependencies(desc),
		Assets:           []types.Asset{{Name: "main", Type: "js", Size: raw, GzipSize: gzip}},
		Measurement:      types.Approximate,
		Strategy:         types.StrategySandbox,
		AnalyzedAt:       time.Now(),
	}, nil
}
