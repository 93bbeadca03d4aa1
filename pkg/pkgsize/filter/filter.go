package filter

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gobwas/glob"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// Filter defines criteria for filtering, sorting, and limiting exports.
type Filter struct {
	// MinSize is the minimum minified size in bytes.
	MinSize int64

	// Include contains glob patterns. If non-empty, paths must match at least one.
	Include []string

	// Exclude contains glob patterns. Matching paths are excluded.
	Exclude []string

	// SortBy specifies the field to sort results by.
	SortBy SortField

	// SortDescending specifies whether to sort in descending order.
	SortDescending bool

	// Limit is the maximum number of exports to return. 0 means unlimited.
	Limit int

	include []glob.Glob
	exclude []glob.Glob
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// New creates a new Filter with the given options. Without options exports
// are sorted largest first with no limit. Invalid patterns fail with
// ErrInvalidPattern.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{
		SortBy:         SortSize,
		SortDescending: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	var err error
	if f.include, err = compile(f.Include); err != nil {
		return nil, err
	}
	if f.exclude, err = compile(f.Exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// WithLimit sets the maximum number of exports to return.
// If limit <= 0, it is set to 0 (unlimited).
func WithLimit(limit int) Option {
	return func(f *Filter) {
		if limit < 0 {
			limit = 0
		}
		f.Limit = limit
	}
}

// WithMinSize sets the minimum size in bytes.
func WithMinSize(minSize int64) Option {
	return func(f *Filter) {
		if minSize < 0 {
			minSize = 0
		}
		f.MinSize = minSize
	}
}

// WithInclude sets the include glob patterns.
func WithInclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Include = patterns
	}
}

// WithExclude sets the exclude glob patterns.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Exclude = patterns
	}
}

// WithSortBy sets the field to sort results by, with that field's default
// direction.
func WithSortBy(field SortField) Option {
	return func(f *Filter) {
		f.SortBy = field
		f.SortDescending = !field.Ascending()
	}
}

// WithSortDescending sets whether to sort in descending order.
func WithSortDescending(desc bool) Option {
	return func(f *Filter) {
		f.SortDescending = desc
	}
}

// Match reports whether the export passes the size and pattern criteria.
func (f *Filter) Match(e types.ExportSize) bool {
	if f.MinSize > 0 && e.Size < f.MinSize {
		return false
	}
	if matchesAny(e.Path, f.exclude) {
		return false
	}
	if len(f.include) > 0 && !matchesAny(e.Path, f.include) {
		return false
	}
	return true
}

func matchesAny(path string, globs []glob.Glob) bool {
	for _, g := range globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// Sort returns a sorted copy of exports. Ties are broken by path so the
// order is deterministic.
func (f *Filter) Sort(exports []types.ExportSize) []types.ExportSize {
	sorted := slices.Clone(exports)
	if sorted == nil {
		sorted = []types.ExportSize{}
	}

	slices.SortFunc(sorted, func(a, b types.ExportSize) int {
		var result int
		switch f.SortBy {
		case SortGzip:
			result = cmp.Compare(a.GzipSize, b.GzipSize)
		case SortPath:
			result = cmp.Compare(a.Path, b.Path)
		case SortName:
			result = cmp.Compare(a.ExportName, b.ExportName)
		default:
			result = cmp.Compare(a.Size, b.Size)
		}
		if f.SortDescending {
			result = -result
		}
		if result == 0 {
			return cmp.Compare(a.Path, b.Path)
		}
		return result
	})

	return sorted
}

// Apply runs Match, Sort and Limit.
func (f *Filter) Apply(exports []types.ExportSize) []types.ExportSize {
	var matched []types.ExportSize
	for _, e := range exports {
		if f.Match(e) {
			matched = append(matched, e)
		}
	}

	sorted := f.Sort(matched)
	if f.Limit > 0 && len(sorted) > f.Limit {
		return sorted[:f.Limit]
	}
	return sorted
}
