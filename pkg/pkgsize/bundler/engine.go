package bundler

import (
	"context"
	"path"
	"strings"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/composition"
)

// Loader tells the engine how to parse a module.
type Loader string

// Loaders by source kind.
const (
	LoaderJS   Loader = "js"
	LoaderJSX  Loader = "jsx"
	LoaderTS   Loader = "ts"
	LoaderTSX  Loader = "tsx"
	LoaderJSON Loader = "json"
	LoaderCSS  Loader = "css"
)

// LoaderFor picks a loader from the file extension alone.
func LoaderFor(p string) Loader {
	switch strings.ToLower(path.Ext(p)) {
	case ".ts":
		return LoaderTS
	case ".tsx":
		return LoaderTSX
	case ".jsx":
		return LoaderJSX
	case ".json":
		return LoaderJSON
	case ".css":
		return LoaderCSS
	default:
		return LoaderJS
	}
}

// Format is an output module format.
type Format string

// Output formats.
const (
	FormatESM Format = "esm"
	FormatCJS Format = "cjs"
)

// ResolveFunc maps a specifier imported by importer to a module path.
// Returning false leaves the import external.
type ResolveFunc func(specifier, importer string) (string, bool)

// LoadFunc returns the source of a resolved module.
type LoadFunc func(path string) (contents string, loader Loader, err error)

// BuildRequest is one bundle invocation.
type BuildRequest struct {
	Entry   string
	Resolve ResolveFunc
	Load    LoadFunc
	Format  Format
}

// BuildOutput is the engine's bundle and the modules it read.
type BuildOutput struct {
	Code   string
	Inputs []composition.Input

	// Externals lists specifiers left unresolved in the output.
	Externals []string
}

// TransformOptions configures a single-file transform.
type TransformOptions struct {
	Minify bool
	Format Format
	Loader Loader
}

// Engine is a JS/TS bundler. Build and Transform report engine diagnostics
// as *types.BundleError.
type Engine interface {
	Initialize(ctx context.Context) error
	Build(ctx context.Context, req BuildRequest) (*BuildOutput, error)
	Transform(ctx context.Context, code string, opts TransformOptions) (string, error)
}
