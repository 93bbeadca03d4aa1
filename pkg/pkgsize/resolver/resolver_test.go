package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type set map[string]bool

func (s set) Has(p string) bool { return s[p] }

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a/b/c", "a/b/c"},
		{"a//b///c", "a/b/c"},
		{"/a/b/", "a/b"},
		{"a/./b", "a/b"},
		{"a/b/../c", "a/c"},
		{"../../a", "a"},
		{"a/../../b", "b"},
		{".", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestDirAndJoin(t *testing.T) {
	assert.Equal(t, "", Dir("index.js"))
	assert.Equal(t, "lib/util", Dir("lib/util/a.js"))
	assert.Equal(t, "lib/b.js", Join("lib/util", "../b.js"))
	assert.Equal(t, "a.js", Join("", "./a.js"))
}

func TestResolveRelativeSuffixOrder(t *testing.T) {
	suffixes := RelativeSuffixes()
	assert.Equal(t, []string{"", ".js", ".mjs", ".ts", "/index.js", "/index.mjs", "/index.ts"}, suffixes)

	// Each suffix wins only when every earlier suffix is absent.
	for i, suffix := range suffixes {
		files := set{}
		for _, later := range suffixes[i:] {
			files["lib/util"+later] = true
		}
		got, ok := Resolve("./util", "lib/index.js", files)
		assert.True(t, ok, "suffix %q", suffix)
		assert.Equal(t, "lib/util"+suffix, got, "suffix %q", suffix)
	}
}

func TestResolveRelativeNone(t *testing.T) {
	files := set{"lib/other.js": true}
	got, ok := Resolve("./util", "lib/index.js", files)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestResolveVerbatimKeyIsIdempotent(t *testing.T) {
	files := set{"lib/util.js": true, "lib/util.js.js": true}
	got, ok := Resolve("./util.js", "lib/index.js", files)
	assert.True(t, ok)
	assert.Equal(t, "lib/util.js", got)

	again, ok := Resolve("./"+got, "index.js", files)
	assert.True(t, ok)
	assert.Equal(t, got, again)
}

func TestResolveParentDirectory(t *testing.T) {
	files := set{"shared.mjs": true, "index.ts": true}

	got, ok := Resolve("../../shared", "lib/deep/a.js", files)
	assert.True(t, ok)
	assert.Equal(t, "shared.mjs", got)

	// Popping above the root stays at the root.
	got, ok = Resolve("../../../shared", "lib/a.js", files)
	assert.True(t, ok)
	assert.Equal(t, "shared.mjs", got)

	got, ok = Resolve("..", "lib/a.js", files)
	assert.True(t, ok)
	assert.Equal(t, "index.ts", got)
}

func TestResolveBare(t *testing.T) {
	tests := []struct {
		name  string
		files set
		spec  string
		want  string
		found bool
	}{
		{
			name:  "exact file",
			files: set{"node_modules/tiny/x.js": true},
			spec:  "tiny/x.js",
			want:  "node_modules/tiny/x.js",
			found: true,
		},
		{
			name:  "index before dist",
			files: set{"node_modules/dep/index.mjs": true, "node_modules/dep/dist/index.js": true},
			spec:  "dep",
			want:  "node_modules/dep/index.mjs",
			found: true,
		},
		{
			name:  "lib fallback",
			files: set{"node_modules/@scope/dep/lib/index.js": true},
			spec:  "@scope/dep",
			want:  "node_modules/@scope/dep/lib/index.js",
			found: true,
		},
		{
			name:  "no extension probing for bare",
			files: set{"node_modules/dep.js": true},
			spec:  "dep",
		},
		{
			name:  "builtin stays unresolved",
			files: set{"index.js": true},
			spec:  "node:fs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.spec, "index.js", tt.files)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDotPrefixedNonRelative(t *testing.T) {
	_, ok := Resolve(".hidden", "index.js", set{".hidden": true, "node_modules/.hidden": true})
	assert.False(t, ok)

	_, ok = Resolve("", "index.js", set{"": true})
	assert.False(t, ok)
}

func TestIsRelative(t *testing.T) {
	assert.True(t, IsRelative("./a"))
	assert.True(t, IsRelative("../a"))
	assert.True(t, IsRelative("."))
	assert.False(t, IsRelative("react"))
	assert.False(t, IsRelative(".a"))
}
