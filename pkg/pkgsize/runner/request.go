package runner

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/cache"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/config"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// Request is one analysis request. It is also the wire form the daemon
// receives, so every field is JSON tagged.
type Request struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`

	CDN                    string   `json:"cdn,omitempty"`
	Minifier               string   `json:"minifier,omitempty"`
	Debug                  bool     `json:"debug,omitempty"`
	CustomImports          []string `json:"customImports,omitempty"`
	UseSandbox             bool     `json:"useSandbox,omitempty"`
	IncludeDependencySizes bool     `json:"includeDependencySizes,omitempty"`

	// NoCache skips the cache lookup. The result is still stored.
	NoCache bool `json:"noCache,omitempty"`
}

// NewRequest parses spec and fills the analysis options from cfg.
func NewRequest(cfg *config.Config, spec string) (Request, error) {
	name, version, err := types.ParseSpec(spec)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Name:                   name,
		Version:                version,
		CDN:                    cfg.CDN,
		Minifier:               cfg.Minifier,
		Debug:                  cfg.Debug,
		CustomImports:          slices.Clone(cfg.CustomImports),
		UseSandbox:             cfg.UseWebContainer,
		IncludeDependencySizes: cfg.IncludeDependencySizes,
	}, nil
}

// Spec returns the request as a name@version string.
func (r Request) Spec() string {
	return types.FormatSpec(r.Name, r.Version)
}

// Digest identifies the options that change a result.
func (r Request) Digest() string {
	imports := slices.Clone(r.CustomImports)
	slices.Sort(imports)
	return cache.Digest(
		r.CDN,
		r.Minifier,
		strconv.FormatBool(r.Debug),
		strconv.FormatBool(r.UseSandbox),
		strconv.FormatBool(r.IncludeDependencySizes),
		strings.Join(imports, ","),
	)
}

// StatsResult is the outcome of Analyze.
type StatsResult struct {
	Stats    *types.PackageStats `json:"stats"`
	Cached   bool                `json:"cached"`
	Duration time.Duration       `json:"duration"`
}

// ExportsResult is the outcome of ExportSizes.
type ExportsResult struct {
	Exports  *types.PackageExportSizes `json:"exports"`
	Cached   bool                      `json:"cached"`
	Duration time.Duration             `json:"duration"`
}
