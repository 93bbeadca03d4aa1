// Package history records past analyses on disk.
package history

import (
	"time"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// Kind is the type of analysis an entry records.
type Kind string

const (
	// KindStats records an AnalyzePackage run.
	KindStats Kind = "stats"
	// KindExports records a GetPackageExportSizes run.
	KindExports Kind = "exports"
)

// Entry is one recorded analysis.
type Entry struct {
	ID          string            `json:"id" yaml:"id"`
	Timestamp   time.Time         `json:"timestamp" yaml:"timestamp"`
	Kind        Kind              `json:"kind" yaml:"kind"`
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version" yaml:"version"`
	Size        int64             `json:"size" yaml:"size"`
	GzipSize    int64             `json:"gzip_size" yaml:"gzip_size"`
	Exports     int               `json:"exports,omitempty" yaml:"exports,omitempty"`
	Measurement types.Measurement `json:"measurement,omitempty" yaml:"measurement,omitempty"`
	Strategy    types.Strategy    `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Cached      bool              `json:"cached,omitempty" yaml:"cached,omitempty"`
	Duration    time.Duration     `json:"duration" yaml:"duration"`
}

// FromStats builds an entry for a package analysis.
func FromStats(stats *types.PackageStats, duration time.Duration, cached bool) Entry {
	return Entry{
		Kind:        KindStats,
		Name:        stats.Name,
		Version:     stats.Version,
		Size:        stats.Size,
		GzipSize:    stats.GzipSize,
		Measurement: stats.Measurement,
		Strategy:    stats.Strategy,
		Cached:      cached,
		Duration:    duration,
	}
}

// FromExports builds an entry for an export sizes run. Size and GzipSize
// are the sums over all exports.
func FromExports(exports *types.PackageExportSizes, duration time.Duration, cached bool) Entry {
	e := Entry{
		Kind:     KindExports,
		Name:     exports.Name,
		Version:  exports.Version,
		Exports:  len(exports.Assets),
		Cached:   cached,
		Duration: duration,
	}
	for _, a := range exports.Assets {
		e.Size += a.Size
		e.GzipSize += a.GzipSize
	}
	return e
}
