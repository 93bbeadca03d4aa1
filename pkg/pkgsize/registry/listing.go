package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"sort"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/fanout"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/resolver"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// MetaNode is one node of a ?meta directory tree.
type MetaNode struct {
	Type string `json:"type"`

	// Path is only present in the array form, where it is the full path.
	Path string `json:"path,omitempty"`

	Size  int64     `json:"size,omitempty"`
	Files MetaFiles `json:"files,omitempty"`
}

// NamedNode is a child of a directory node.
type NamedNode struct {
	Name string
	Node MetaNode
}

// MetaFiles holds directory children. It decodes both the object form
// {name: node}, ordered by name, and the array form [{path, ...}], which
// keeps the server's order.
type MetaFiles []NamedNode

// UnmarshalJSON implements json.Unmarshaler.
func (m *MetaFiles) UnmarshalJSON(data []byte) error {
	var byName map[string]MetaNode
	if err := json.Unmarshal(data, &byName); err == nil {
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)

		out := make(MetaFiles, 0, len(names))
		for _, name := range names {
			out = append(out, NamedNode{Name: name, Node: byName[name]})
		}
		*m = out
		return nil
	}

	var list []MetaNode
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	out := make(MetaFiles, 0, len(list))
	for _, node := range list {
		out = append(out, NamedNode{Name: path.Base(node.Path), Node: node})
	}
	*m = out
	return nil
}

// Flatten walks the tree depth first and returns its files with paths built
// by joining directory names with "/". Directories are not emitted.
func Flatten(root MetaNode) []types.FileEntry {
	var out []types.FileEntry
	flatten(root.Files, "", &out)
	return out
}

func flatten(children MetaFiles, prefix string, out *[]types.FileEntry) {
	for _, child := range children {
		p := resolver.Join(prefix, child.Name)
		if p == "" {
			continue
		}
		switch child.Node.Type {
		case string(types.KindDirectory):
			flatten(child.Node.Files, p, out)
		case string(types.KindFile):
			*out = append(*out, types.FileEntry{Path: p, Size: child.Node.Size, Kind: types.KindFile})
		}
	}
}

// probeCandidates is the fixed list of conventional paths checked when no
// listing is available. Probing can only ever discover these files.
var probeCandidates = []string{
	"package.json",
	"index.js",
	"index.mjs",
	"index.cjs",
	"index.ts",
	"dist/index.js",
	"dist/index.mjs",
	"dist/index.cjs",
	"lib/index.js",
	"lib/index.mjs",
	"src/index.js",
	"src/index.ts",
	"README.md",
	"LICENSE",
}

// ProbeCandidates returns a copy of the probe list.
func ProbeCandidates() []string {
	return append([]string(nil), probeCandidates...)
}

// probeFiles issues HEAD requests for every candidate and keeps those that
// answer 2xx, in candidate order.
func (c *Client) probeFiles(ctx context.Context, spec string) []types.FileEntry {
	results := fanout.Map(ctx, probeCandidates, c.concurrency, func(ctx context.Context, p string) (types.FileEntry, error) {
		resp, err := c.do(ctx, http.MethodHead, c.provider.url(spec, p))
		if err != nil {
			return types.FileEntry{}, err
		}
		_ = resp.Body.Close()

		return types.FileEntry{Path: p, Size: max(resp.ContentLength, 0), Kind: types.KindFile}, nil
	})

	for _, r := range fanout.Failures(results) {
		if !IsNotFound(r.Err) {
			logger.Debug("probe failed", "spec", spec, "path", probeCandidates[r.Index], "error", r.Err)
		}
	}
	return fanout.Successes(results)
}
