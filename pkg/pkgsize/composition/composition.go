// Package composition describes what a bundle is made of: which input
// modules it contains, how deep each sits below the entry point and which
// dependency owns it.
package composition

import (
	"errors"
	"sort"
	"strings"

	"github.com/dominikbraun/graph"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// Input is one module the bundler read.
type Input struct {
	Path          string
	Bytes         int64
	BytesInOutput int64

	// Imports lists the paths of other inputs this module imports.
	// External imports are not included.
	Imports []string
}

// Analyze builds the import graph of inputs and returns one ModuleSize per
// input, largest contribution first. Inputs unreachable from entry get a
// depth of -1.
func Analyze(entry string, inputs []Input) ([]types.ModuleSize, error) {
	g := graph.New(graph.StringHash, graph.Directed())

	for _, in := range inputs {
		if err := g.AddVertex(in.Path); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, err
		}
	}
	for _, in := range inputs {
		for _, imp := range in.Imports {
			err := g.AddEdge(in.Path, imp)
			switch {
			case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
			case errors.Is(err, graph.ErrVertexNotFound):
				// Import of a module the metafile did not list as an input.
			default:
				return nil, err
			}
		}
	}

	adjacency, err := g.AdjacencyMap()
	if err != nil {
		return nil, err
	}
	depths := depthsFrom(entry, adjacency)

	out := make([]types.ModuleSize, 0, len(inputs))
	for _, in := range inputs {
		depth, ok := depths[in.Path]
		if !ok {
			depth = -1
		}
		out = append(out, types.ModuleSize{
			Path:          in.Path,
			Bytes:         in.Bytes,
			BytesInOutput: in.BytesInOutput,
			Depth:         depth,
			Imports:       len(adjacency[in.Path]),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BytesInOutput != out[j].BytesInOutput {
			return out[i].BytesInOutput > out[j].BytesInOutput
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// depthsFrom is a breadth-first walk recording the shortest import
// distance of every reachable module.
func depthsFrom(entry string, adjacency map[string]map[string]graph.Edge[string]) map[string]int {
	depths := map[string]int{}
	if _, ok := adjacency[entry]; !ok {
		return depths
	}

	depths[entry] = 0
	queue := []string{entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		next := make([]string, 0, len(adjacency[cur]))
		for target := range adjacency[cur] {
			next = append(next, target)
		}
		sort.Strings(next)

		for _, target := range next {
			if _, seen := depths[target]; seen {
				continue
			}
			depths[target] = depths[cur] + 1
			queue = append(queue, target)
		}
	}
	return depths
}

// Owner returns the package a module path belongs to: the innermost
// node_modules/<name> (or node_modules/@scope/<name>) segment, or self for
// the package's own files.
func Owner(path, self string) string {
	const marker = "node_modules/"
	i := strings.LastIndex(path, marker)
	if i < 0 {
		return self
	}

	rest := strings.Split(path[i+len(marker):], "/")
	if strings.HasPrefix(rest[0], "@") && len(rest) > 1 {
		return rest[0] + "/" + rest[1]
	}
	return rest[0]
}

// DependencySizes groups bytes in output by owning package, largest first.
func DependencySizes(self string, modules []types.ModuleSize) []types.DependencySize {
	totals := map[string]int64{}
	for _, m := range modules {
		totals[Owner(m.Path, self)] += m.BytesInOutput
	}

	out := make([]types.DependencySize, 0, len(totals))
	for name, n := range totals {
		out = append(out, types.DependencySize{Name: name, ApproximateSize: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ApproximateSize != out[j].ApproximateSize {
			return out[i].ApproximateSize > out[j].ApproximateSize
		}
		return out[i].Name < out[j].Name
	})
	return out
}
