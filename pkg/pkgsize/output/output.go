// Package output provides formatters for displaying pkgsize results in
// various output formats (pretty, plain, json, yaml, etc.).
//
// Formatters are kept in a registry and selected by name at runtime:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/history"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// Meta describes how a report was produced.
type Meta struct {
	// Cached is set when the result came from the result cache.
	Cached bool `json:"cached" yaml:"cached"`

	// DaemonUp is set when the result was produced by pkgsized.
	DaemonUp bool `json:"daemon_up" yaml:"daemon_up"`

	// Duration is the wall time of the request.
	Duration time.Duration `json:"duration" yaml:"duration"`

	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Report is the data handed to a formatter. Exactly one of Stats, Exports
// or History is expected to be set.
type Report struct {
	Stats   *types.PackageStats       `json:"stats,omitempty" yaml:"stats,omitempty"`
	Exports *types.PackageExportSizes `json:"exports,omitempty" yaml:"exports,omitempty"`
	History []history.Entry           `json:"history,omitempty" yaml:"history,omitempty"`
	Meta    Meta                      `json:"meta" yaml:"meta"`
}

// TotalExportSize returns the summed minified and gzip sizes of all exports.
func (r *Report) TotalExportSize() (size, gzip int64) {
	if r.Exports == nil {
		return 0, 0
	}
	for _, a := range r.Exports.Assets {
		size += a.Size
		gzip += a.GzipSize
	}
	return size, gzip
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted report to the buffer.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any
// existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
