// Package bundler bundles a package from its virtual file set and minifies
// the result.
//
// The engine is a shared resource. A Bundler initializes it at most once,
// lazily, no matter how many analyses race to use it first, and serializes
// every build and transform against it.
package bundler

import (
	"context"
	"fmt"
	"sync"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/composition"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/resolver"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/size"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/vfs"
)

var logger = logging.Get("bundler")

// Entry is the module a bundle starts from. When Contents is set the entry
// is served from it instead of the file set, which lets callers bundle a
// synthesized entry that re-exports package files.
type Entry struct {
	Path     string
	Contents *string
}

// FileEntry is an entry served from the file set.
func FileEntry(path string) Entry {
	return Entry{Path: path}
}

// SyntheticEntry is an entry with its own contents.
func SyntheticEntry(path, contents string) Entry {
	return Entry{Path: path, Contents: &contents}
}

// Bundler drives an Engine over virtual file sets.
type Bundler struct {
	engine Engine
	sizes  *size.Analyzer

	initMu sync.Mutex
	ready  bool

	// buildMu serializes engine calls.
	buildMu sync.Mutex
}

// New returns a bundler over engine. sizes measures the raw bundle; nil
// uses the deterministic estimate.
func New(engine Engine, sizes *size.Analyzer) *Bundler {
	if sizes == nil {
		sizes = &size.Analyzer{}
	}
	return &Bundler{engine: engine, sizes: sizes}
}

var (
	sharedOnce sync.Once
	shared     *Bundler
)

// Shared returns the process-wide esbuild bundler.
func Shared() *Bundler {
	sharedOnce.Do(func() {
		shared = New(ESBuildEngine{}, size.NewAnalyzer(nil))
	})
	return shared
}

// Init initializes the engine once. Concurrent callers wait for the first
// to finish; a failed initialization is retried by the next caller.
func (b *Bundler) Init(ctx context.Context) error {
	b.initMu.Lock()
	defer b.initMu.Unlock()

	if b.ready {
		return nil
	}
	if err := b.engine.Initialize(ctx); err != nil {
		return err
	}
	b.ready = true
	logger.Debug("engine initialized")
	return nil
}

// Ready reports whether the engine has been initialized.
func (b *Bundler) Ready() bool {
	b.initMu.Lock()
	defer b.initMu.Unlock()
	return b.ready
}

// Reset forgets the initialization so the next call initializes again.
func (b *Bundler) Reset() {
	b.initMu.Lock()
	defer b.initMu.Unlock()
	b.ready = false
}

// Bundle bundles entry against files. Imports the resolver cannot place in
// files are left external. Engine failures are returned as *types.BundleError.
func (b *Bundler) Bundle(ctx context.Context, entry Entry, files *vfs.FileSet) (*types.BundleResult, error) {
	if err := b.Init(ctx); err != nil {
		return nil, err
	}

	req := BuildRequest{
		Entry:  entry.Path,
		Format: FormatESM,
		Resolve: func(specifier, importer string) (string, bool) {
			return resolver.Resolve(specifier, importer, files)
		},
		Load: func(p string) (string, Loader, error) {
			if p == entry.Path && entry.Contents != nil {
				return *entry.Contents, LoaderFor(p), nil
			}
			content, ok := files.Get(p)
			if !ok {
				return "", "", fmt.Errorf("%s is not in the file set", p)
			}
			return content, LoaderFor(p), nil
		},
	}

	b.buildMu.Lock()
	out, err := b.engine.Build(ctx, req)
	b.buildMu.Unlock()
	if err != nil {
		return nil, err
	}

	modules, err := composition.Analyze(entry.Path, out.Inputs)
	if err != nil {
		logger.Warn("composition analysis failed", "entry", entry.Path, "error", err)
	}
	if len(out.Externals) > 0 {
		logger.Debug("imports left external", "entry", entry.Path, "externals", out.Externals)
	}

	raw := b.sizes.Size(out.Code)
	gzip := b.sizes.CompressedSize(out.Code)
	return &types.BundleResult{
		Code:     out.Code,
		Size:     raw,
		GzipSize: gzip,
		Assets:   []types.Asset{{Name: "main", Type: "js", Size: raw, GzipSize: gzip}},
		Modules:  modules,
	}, nil
}

// ToCommonJS converts an ES module to CommonJS so it can run in a plain
// script runtime.
func (b *Bundler) ToCommonJS(ctx context.Context, code string) (string, error) {
	if err := b.Init(ctx); err != nil {
		return "", err
	}
	b.buildMu.Lock()
	defer b.buildMu.Unlock()
	return b.engine.Transform(ctx, code, TransformOptions{Format: FormatCJS})
}
