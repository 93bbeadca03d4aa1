package filter

import (
	"errors"
	"strings"
	"testing"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

var sample = []types.ExportSize{
	{Path: "lib/map.js", Size: 300, GzipSize: 120, ExportName: "map"},
	{Path: "lib/filter.js", Size: 500, GzipSize: 100, ExportName: "filter"},
	{Path: "index.js", Size: 900, GzipSize: 400, ExportName: "index"},
	{Path: "lib/fp/curry.js", Size: 300, GzipSize: 90, ExportName: "curry"},
	{Path: "test/helper.js", Size: 50, GzipSize: 40, ExportName: "helper"},
}

func paths(exports []types.ExportSize) []string {
	out := make([]string, 0, len(exports))
	for _, e := range exports {
		out = append(out, e.Path)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func mustNew(t *testing.T, opts ...Option) *Filter {
	t.Helper()
	f, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func TestApplyDefaultsSortLargestFirst(t *testing.T) {
	got := paths(mustNew(t).Apply(sample))
	want := []string{"index.js", "lib/filter.js", "lib/fp/curry.js", "lib/map.js", "test/helper.js"}
	if !equal(got, want) {
		t.Errorf("Apply() = %v, want %v", got, want)
	}
}

func TestApplyPatterns(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want []string
	}{
		{
			name: "include single level",
			opts: []Option{WithInclude("lib/*.js")},
			want: []string{"lib/filter.js", "lib/map.js"},
		},
		{
			name: "include any depth",
			opts: []Option{WithInclude("lib/**")},
			want: []string{"lib/filter.js", "lib/fp/curry.js", "lib/map.js"},
		},
		{
			name: "exclude wins",
			opts: []Option{WithInclude("**.js"), WithExclude("test/**", "index.js")},
			want: []string{"lib/filter.js", "lib/fp/curry.js", "lib/map.js"},
		},
		{
			name: "min size",
			opts: []Option{WithMinSize(400)},
			want: []string{"index.js", "lib/filter.js"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paths(mustNew(t, tt.opts...).Apply(sample))
			if !equal(got, tt.want) {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplySortAndLimit(t *testing.T) {
	got := paths(mustNew(t, WithSortBy(SortGzip), WithLimit(2)).Apply(sample))
	if want := []string{"index.js", "lib/map.js"}; !equal(got, want) {
		t.Errorf("gzip sort = %v, want %v", got, want)
	}

	got = paths(mustNew(t, WithSortBy(SortName)).Apply(sample))
	if want := []string{"lib/fp/curry.js", "lib/filter.js", "test/helper.js", "index.js", "lib/map.js"}; !equal(got, want) {
		t.Errorf("name sort = %v, want %v", got, want)
	}

	got = paths(mustNew(t, WithSortBy(SortSize), WithSortDescending(false), WithLimit(1)).Apply(sample))
	if want := []string{"test/helper.js"}; !equal(got, want) {
		t.Errorf("ascending size = %v, want %v", got, want)
	}
}

func TestSortDoesNotModifyInput(t *testing.T) {
	before := paths(sample)
	_ = mustNew(t, WithSortBy(SortPath)).Sort(sample)
	if !equal(before, paths(sample)) {
		t.Error("Sort() modified its input")
	}
	if got := mustNew(t).Sort(nil); got == nil || len(got) != 0 {
		t.Errorf("Sort(nil) = %v, want empty slice", got)
	}
}

func TestInvalidPattern(t *testing.T) {
	_, err := New(WithInclude("lib/[a-"))
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("New() error = %v, want ErrInvalidPattern", err)
	}
}

func TestParseSortField(t *testing.T) {
	for in, want := range map[string]SortField{"size": SortSize, "GZIP": SortGzip, "path": SortPath, "name": SortName, "": SortSize} {
		got, err := ParseSortField(in)
		if err != nil || got != want {
			t.Errorf("ParseSortField(%q) = %v, %v", in, got, err)
		}
		if in != "" && got.String() != strings.ToLower(in) {
			t.Errorf("String() = %q, want %q", got.String(), strings.ToLower(in))
		}
	}
	if _, err := ParseSortField("age"); !errors.Is(err, ErrInvalidSortField) {
		t.Errorf("ParseSortField(age) error = %v", err)
	}
}
