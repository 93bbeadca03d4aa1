// Package types provides the core data types for the pkgsize package analyzer.
// It includes package descriptors as reported by a registry, the aggregate
// size report, per-export size results and the helpers shared by all layers.
package types

import (
	"encoding/json"
	"time"
)

// FileKind distinguishes files from directories in a registry listing.
type FileKind string

// File kinds reported by a registry listing.
const (
	KindFile      FileKind = "file"
	KindDirectory FileKind = "directory"
)

// FileEntry is one node of a package listing.
type FileEntry struct {
	// Path is registry-relative, slash separated and has no leading slash.
	Path string `json:"path"`

	// Size is the declared size in bytes, zero when the registry does not report it.
	Size int64 `json:"size"`

	Kind FileKind `json:"kind"`
}

// IsFile reports whether the entry is a downloadable file.
func (e FileEntry) IsFile() bool {
	return e.Kind == KindFile
}

// SideEffects mirrors the manifest "sideEffects" field, which is either a
// boolean or a list of path globs.
type SideEffects struct {
	// Set is true when the manifest declared the field at all.
	Set bool

	// Value holds the boolean form. A glob list implies true.
	Value bool

	Globs []string
}

// UnmarshalJSON accepts both the boolean and the list form.
func (s *SideEffects) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*s = SideEffects{Set: true, Value: b}
		return nil
	}

	var globs []string
	if err := json.Unmarshal(data, &globs); err != nil {
		return err
	}
	*s = SideEffects{Set: true, Value: true, Globs: globs}
	return nil
}

// MarshalJSON writes the list form when globs are present.
func (s SideEffects) MarshalJSON() ([]byte, error) {
	if len(s.Globs) > 0 {
		return json.Marshal(s.Globs)
	}
	return json.Marshal(s.Value)
}

// HasSideEffects reports whether a bundler must assume the package has side
// effects. Only an explicit false opts out.
func (s SideEffects) HasSideEffects() bool {
	if !s.Set {
		return true
	}
	return s.Value
}

// PackageDescriptor is the package manifest plus its file listing.
// It is immutable once fetched.
type PackageDescriptor struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Main             string            `json:"main,omitempty"`
	Module           string            `json:"module,omitempty"`
	JSNext           string            `json:"jsnext:main,omitempty"`
	Type             string            `json:"type,omitempty"`
	SideEffects      SideEffects       `json:"sideEffects"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`

	// Files is filled from the registry listing, not from the manifest.
	Files []FileEntry `json:"-"`
}

// IsModuleType reports whether the manifest declares "type": "module".
func (d *PackageDescriptor) IsModuleType() bool {
	return d.Type == "module"
}

// Flags returns the module-format flags read off the manifest.
func (d *PackageDescriptor) Flags() Flags {
	return Flags{
		HasJSNext:      d.JSNext != "",
		HasJSModule:    d.Module != "",
		IsModuleType:   d.IsModuleType(),
		HasSideEffects: d.SideEffects.HasSideEffects(),
	}
}

// FileCount returns the number of file-kind entries in the listing.
func (d *PackageDescriptor) FileCount() int {
	n := 0
	for _, f := range d.Files {
		if f.IsFile() {
			n++
		}
	}
	return n
}

// Flags are the module-format flags of a package.
type Flags struct {
	HasJSNext      bool `json:"hasJSNext"`
	HasJSModule    bool `json:"hasJSModule"`
	IsModuleType   bool `json:"isModuleType"`
	HasSideEffects bool `json:"hasSideEffects"`
}

// Asset is one output artifact of a bundle.
type Asset struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	GzipSize int64  `json:"gzipSize"`
}

// ModuleSize is the contribution of one input module to a bundle.
type ModuleSize struct {
	Path          string `json:"path"`
	Bytes         int64  `json:"bytes"`
	BytesInOutput int64  `json:"bytesInOutput"`
	Depth         int    `json:"depth"`
	Imports       int    `json:"imports"`
}

// DependencySize is the best-effort share of the bundle owned by a dependency.
type DependencySize struct {
	Name            string `json:"name"`
	ApproximateSize int64  `json:"approximateSize"`
}

// BundleResult is the output of one bundler run.
type BundleResult struct {
	Code     string       `json:"-"`
	Size     int64        `json:"size"`
	GzipSize int64        `json:"gzipSize"`
	Assets   []Asset      `json:"assets"`
	Modules  []ModuleSize `json:"modules,omitempty"`
}

// Measurement labels how trustworthy the numeric fields of a report are.
type Measurement string

const (
	// Measured figures come from actually bundling and compressing the package.
	Measured Measurement = "measured"

	// Approximate figures are estimates produced without a real build.
	Approximate Measurement = "approximate"
)

// Strategy names the analysis path that produced a report.
type Strategy string

// Available analysis strategies.
const (
	StrategyCDN     Strategy = "cdn"
	StrategySandbox Strategy = "sandbox"
)

// PackageStats is the aggregate size report for one package version.
type PackageStats struct {
	Name    string `json:"name"`
	Version string `json:"version"`

	// Size is the minified bundle size in bytes.
	Size int64 `json:"size"`

	GzipSize int64 `json:"gzipSize"`

	// UnminifiedSize is the bundle size before minification.
	UnminifiedSize int64 `json:"unminifiedSize,omitempty"`

	// ParseTime is only set when parse-time measurement was enabled.
	ParseTime *time.Duration `json:"parseTime,omitempty"`

	DependencyCount  int              `json:"dependencyCount"`
	Flags            Flags            `json:"flags"`
	PeerDependencies []string         `json:"peerDependencies"`
	DependencySizes  []DependencySize `json:"dependencySizes,omitempty"`
	Assets           []Asset          `json:"assets"`
	Modules          []ModuleSize     `json:"modules,omitempty"`

	Measurement Measurement `json:"measurement"`
	Strategy    Strategy    `json:"strategy"`

	AnalyzedAt time.Time `json:"analyzedAt"`
}

// IsApproximate reports whether the numeric fields are estimates.
func (s *PackageStats) IsApproximate() bool {
	return s.Measurement == Approximate
}

// ExportSize is the standalone size of one script file of a package.
type ExportSize struct {
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	GzipSize   int64  `json:"gzipSize"`
	ExportName string `json:"exportName"`
}

// PackageExportSizes lists per-export sizes. Asset order carries no meaning.
type PackageExportSizes struct {
	Name    string       `json:"name"`
	Version string       `json:"version"`
	Assets  []ExportSize `json:"assets"`
}
