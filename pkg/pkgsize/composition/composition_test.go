package composition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

func TestAnalyzeDepthsAndOrder(t *testing.T) {
	inputs := []Input{
		{Path: "index.js", Bytes: 100, BytesInOutput: 50, Imports: []string{"lib/a.js", "lib/b.js"}},
		{Path: "lib/a.js", Bytes: 400, BytesInOutput: 300, Imports: []string{"lib/c.js"}},
		{Path: "lib/b.js", Bytes: 200, BytesInOutput: 150, Imports: []string{"lib/c.js", "lib/a.js"}},
		{Path: "lib/c.js", Bytes: 10, BytesInOutput: 5},
		{Path: "orphan.js", Bytes: 10, BytesInOutput: 0},
	}

	modules, err := Analyze("index.js", inputs)
	require.NoError(t, err)
	require.Len(t, modules, 5)

	byPath := map[string]types.ModuleSize{}
	for _, m := range modules {
		byPath[m.Path] = m
	}
	assert.Equal(t, 0, byPath["index.js"].Depth)
	assert.Equal(t, 1, byPath["lib/a.js"].Depth)
	assert.Equal(t, 1, byPath["lib/b.js"].Depth)
	assert.Equal(t, 2, byPath["lib/c.js"].Depth)
	assert.Equal(t, -1, byPath["orphan.js"].Depth)
	assert.Equal(t, 2, byPath["lib/b.js"].Imports)

	assert.Equal(t, "lib/a.js", modules[0].Path, "largest contribution first")
	assert.Equal(t, "orphan.js", modules[4].Path)
}

func TestAnalyzeToleratesCyclesAndUnknownImports(t *testing.T) {
	inputs := []Input{
		{Path: "a.js", Imports: []string{"b.js", "missing.js", "b.js"}},
		{Path: "b.js", Imports: []string{"a.js"}},
	}
	modules, err := Analyze("a.js", inputs)
	require.NoError(t, err)
	assert.Len(t, modules, 2)
}

func TestAnalyzeUnknownEntry(t *testing.T) {
	modules, err := Analyze("nope.js", []Input{{Path: "a.js"}})
	require.NoError(t, err)
	assert.Equal(t, -1, modules[0].Depth)
}

func TestOwner(t *testing.T) {
	assert.Equal(t, "self", Owner("lib/index.js", "self"))
	assert.Equal(t, "dep", Owner("node_modules/dep/index.js", "self"))
	assert.Equal(t, "@scope/dep", Owner("node_modules/@scope/dep/lib/x.js", "self"))
	assert.Equal(t, "inner", Owner("node_modules/outer/node_modules/inner/a.js", "self"))
}

func TestDependencySizes(t *testing.T) {
	modules := []types.ModuleSize{
		{Path: "index.js", BytesInOutput: 10},
		{Path: "node_modules/dep/a.js", BytesInOutput: 30},
		{Path: "node_modules/dep/b.js", BytesInOutput: 5},
		{Path: "lib/x.js", BytesInOutput: 20},
	}

	assert.Equal(t, []types.DependencySize{
		{Name: "dep", ApproximateSize: 35},
		{Name: "self", ApproximateSize: 30},
	}, DependencySizes("self", modules))
}
