package analyzer

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/bundler"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/resolver"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/vfs"
)

// syntheticEntry names generated entries. A package file at the same path
// is shadowed.
const syntheticEntry = "__pkgsize_entry__.js"

// selectEntry picks the module to bundle from, in order:
//
//  1. the resolved main file, when it is in the set
//  2. a re-export of the configured custom imports
//  3. the main file's fetched contents, when the set lacks it
//  4. a re-export of index.js, when it is in the set
func (a *Analyzer) selectEntry(ctx context.Context, desc *types.PackageDescriptor, files *vfs.FileSet) (bundler.Entry, error) {
	main, mainErr := a.source.ResolveMainFile(ctx, desc)
	if mainErr == nil {
		if files.Has(main.Path) {
			return bundler.FileEntry(main.Path), nil
		}
		if path.Ext(main.Path) == "" {
			if p, ok := resolver.Resolve("./"+main.Path, "", files); ok {
				return bundler.FileEntry(p), nil
			}
		}
	}

	if len(a.opts.CustomImports) > 0 {
		return bundler.SyntheticEntry(syntheticEntry, reexports(a.opts.CustomImports)), nil
	}

	if mainErr == nil {
		return bundler.SyntheticEntry(main.Path, main.Contents), nil
	}

	if files.Has("index.js") {
		return bundler.SyntheticEntry(syntheticEntry, reexports([]string{"index.js"})), nil
	}

	return bundler.Entry{}, fmt.Errorf("%w: %s has no entry file", types.ErrEntryPointUnresolved,
		types.FormatSpec(desc.Name, desc.Version))
}

// reexports renders an entry at the package root re-exporting each subpath.
func reexports(subpaths []string) string {
	var b strings.Builder
	for _, p := range subpaths {
		p = resolver.Normalize(p)
		if p == "" {
			continue
		}
		fmt.Fprintf(&b, "export * from './%s';\n", p)
	}
	return b.String()
}
