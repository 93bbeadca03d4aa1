package registry

import (
	"context"
	"fmt"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/fanout"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/resolver"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/vfs"
)

// mainFallbacks are tried after the manifest's module and main fields.
var mainFallbacks = []string{"index.js", "index.mjs", "dist/index.js", "lib/index.js"}

// MainFile is a resolved entry file with its fetched content.
type MainFile struct {
	Path     string
	Contents string
}

// DownloadPackage fetches the descriptor for name@version and then every
// file it lists.
func (c *Client) DownloadPackage(ctx context.Context, name, version string) (*vfs.FileSet, error) {
	desc, err := c.GetPackageInfo(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return c.DownloadFiles(ctx, desc), nil
}

// DownloadFiles fetches every file-kind entry of desc concurrently. A file
// that fails to download is logged and left out; this never fails as a
// whole.
func (c *Client) DownloadFiles(ctx context.Context, desc *types.PackageDescriptor) *vfs.FileSet {
	set := vfs.New(desc.Files)

	var paths []string
	for _, f := range desc.Files {
		if f.IsFile() {
			paths = append(paths, f.Path)
		}
	}

	results := fanout.Map(ctx, paths, c.concurrency, func(ctx context.Context, p string) (string, error) {
		return c.FetchFile(ctx, desc.Name, desc.Version, p)
	})

	for _, r := range results {
		p := paths[r.Index]
		if r.Err != nil {
			logger.Warn("file download failed", "package", desc.Name, "path", p, "error", r.Err)
			continue
		}
		if err := set.Add(p, r.Value); err != nil {
			logger.Warn("file rejected", "package", desc.Name, "path", p, "error", err)
		}
	}

	logger.Debug("files downloaded",
		"package", desc.Name,
		"declared", len(paths),
		"fetched", set.Len(),
	)
	return set
}

// MainCandidates returns the entry candidates for desc in preference order:
// module, main, then the conventional fallbacks. Duplicates are dropped.
func MainCandidates(desc *types.PackageDescriptor) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range append([]string{desc.Module, desc.Main}, mainFallbacks...) {
		p = resolver.Normalize(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ResolveMainFile fetches the entry candidates in order and returns the first
// that downloads. ES module entries win over main so that module-format
// reporting reflects what a bundler would pick.
func (c *Client) ResolveMainFile(ctx context.Context, desc *types.PackageDescriptor) (MainFile, error) {
	for _, p := range MainCandidates(desc) {
		contents, err := c.FetchFile(ctx, desc.Name, desc.Version, p)
		if err != nil {
			logger.Debug("entry candidate unavailable", "package", desc.Name, "path", p, "error", err)
			continue
		}
		return MainFile{Path: p, Contents: contents}, nil
	}
	return MainFile{}, fmt.Errorf("%w: no candidate of %s could be fetched",
		types.ErrEntryPointUnresolved, types.FormatSpec(desc.Name, desc.Version))
}
