package bundler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/composition"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// namespace keeps virtual modules away from esbuild's filesystem resolver.
const namespace = "pkgsize"

// ESBuildEngine is an Engine backed by esbuild's Go API.
type ESBuildEngine struct{}

var _ Engine = ESBuildEngine{}

// Initialize runs an empty transform to confirm the engine is usable.
func (ESBuildEngine) Initialize(context.Context) error {
	result := api.Transform("", api.TransformOptions{Loader: api.LoaderJS})
	if len(result.Errors) > 0 {
		return fmt.Errorf("initializing esbuild: %w", diagnostics(result.Errors))
	}
	return nil
}

// Build implements Engine.
func (ESBuildEngine) Build(_ context.Context, req BuildRequest) (*BuildOutput, error) {
	result := api.Build(api.BuildOptions{
		EntryPoints: []string{req.Entry},
		Outfile:     "bundle.js",
		Bundle:      true,
		Write:       false,
		Metafile:    true,
		Format:      esbuildFormat(req.Format),
		Platform:    api.PlatformBrowser,
		Target:      api.ESNext,
		LogLevel:    api.LogLevelSilent,
		Plugins:     []api.Plugin{virtualPlugin(req)},
	})

	if len(result.Errors) > 0 {
		return nil, diagnostics(result.Errors)
	}
	code, ok := scriptOutput(result.OutputFiles)
	if !ok {
		return nil, &types.BundleError{Messages: []string{"no script output produced"}}
	}

	inputs, externals, err := parseMetafile(result.Metafile)
	if err != nil {
		return nil, err
	}

	return &BuildOutput{
		Code:      code,
		Inputs:    inputs,
		Externals: externals,
	}, nil
}

// Transform implements Engine.
func (ESBuildEngine) Transform(_ context.Context, code string, opts TransformOptions) (string, error) {
	loader := opts.Loader
	if loader == "" {
		loader = LoaderJS
	}

	to := api.TransformOptions{
		Loader:            esbuildLoader(loader),
		Target:            api.ESNext,
		MinifyWhitespace:  opts.Minify,
		MinifyIdentifiers: opts.Minify,
		MinifySyntax:      opts.Minify,
		LogLevel:          api.LogLevelSilent,
	}
	if opts.Format != "" {
		to.Format = esbuildFormat(opts.Format)
	}

	result := api.Transform(code, to)
	if len(result.Errors) > 0 {
		return "", diagnostics(result.Errors)
	}
	return string(result.Code), nil
}

// scriptOutput picks the JS output. Stylesheets imported by the package are
// emitted as a separate file and are not part of the script size.
func scriptOutput(files []api.OutputFile) (string, bool) {
	for _, f := range files {
		if strings.HasSuffix(f.Path, ".js") {
			return string(f.Contents), true
		}
	}
	return "", false
}

// virtualPlugin routes every resolution through req.Resolve and every load
// through req.Load. Unresolved specifiers become externals.
func virtualPlugin(req BuildRequest) api.Plugin {
	return api.Plugin{
		Name: "pkgsize-virtual",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveEntryPoint {
						return api.OnResolveResult{Path: req.Entry, Namespace: namespace}, nil
					}
					if p, ok := req.Resolve(args.Path, args.Importer); ok {
						return api.OnResolveResult{Path: p, Namespace: namespace}, nil
					}
					return api.OnResolveResult{Path: args.Path, External: true}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: namespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents, loader, err := req.Load(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					return api.OnLoadResult{Contents: &contents, Loader: esbuildLoader(loader)}, nil
				})
		},
	}
}

func esbuildLoader(l Loader) api.Loader {
	switch l {
	case LoaderTS:
		return api.LoaderTS
	case LoaderTSX:
		return api.LoaderTSX
	case LoaderJSX:
		return api.LoaderJSX
	case LoaderJSON:
		return api.LoaderJSON
	case LoaderCSS:
		return api.LoaderCSS
	default:
		return api.LoaderJS
	}
}

func esbuildFormat(f Format) api.Format {
	if f == FormatCJS {
		return api.FormatCommonJS
	}
	return api.FormatESModule
}

func diagnostics(msgs []api.Message) *types.BundleError {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			out = append(out, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		out = append(out, m.Text)
	}
	return &types.BundleError{Messages: out}
}

type metafile struct {
	Inputs map[string]struct {
		Bytes   int64 `json:"bytes"`
		Imports []struct {
			Path     string `json:"path"`
			External bool   `json:"external,omitempty"`
		} `json:"imports"`
	} `json:"inputs"`
	Outputs map[string]struct {
		Inputs map[string]struct {
			BytesInOutput int64 `json:"bytesInOutput"`
		} `json:"inputs"`
	} `json:"outputs"`
}

// parseMetafile flattens the metafile into composition inputs with the
// namespace prefix removed.
func parseMetafile(raw string) ([]composition.Input, []string, error) {
	var meta metafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, nil, fmt.Errorf("parsing metafile: %w", err)
	}

	inOutput := map[string]int64{}
	for _, out := range meta.Outputs {
		for p, contrib := range out.Inputs {
			inOutput[stripNamespace(p)] += contrib.BytesInOutput
		}
	}

	externals := map[string]bool{}
	inputs := make([]composition.Input, 0, len(meta.Inputs))
	for p, in := range meta.Inputs {
		input := composition.Input{
			Path:          stripNamespace(p),
			Bytes:         in.Bytes,
			BytesInOutput: inOutput[stripNamespace(p)],
		}
		for _, imp := range in.Imports {
			if imp.External {
				externals[imp.Path] = true
				continue
			}
			input.Imports = append(input.Imports, stripNamespace(imp.Path))
		}
		inputs = append(inputs, input)
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Path < inputs[j].Path })

	ext := make([]string, 0, len(externals))
	for p := range externals {
		ext = append(ext, p)
	}
	sort.Strings(ext)

	return inputs, ext, nil
}

func stripNamespace(p string) string {
	return strings.TrimPrefix(p, namespace+":")
}
