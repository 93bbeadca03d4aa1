package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// fakeCDN serves one package version from memory.
type fakeCDN struct {
	spec     string
	files    map[string]string
	meta     string
	failing  map[string]bool
	requests atomic.Int32
}

func (f *fakeCDN) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)

	prefix := "/" + f.spec + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	p := strings.TrimPrefix(r.URL.Path, prefix)

	if p == "" && r.URL.RawQuery == "meta" {
		if f.meta == "" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(f.meta))
		return
	}

	if f.failing[p] {
		http.Error(w, "boom", http.StatusBadGateway)
		return
	}

	content, ok := f.files[p]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write([]byte(content))
}

func newTestClient(t *testing.T, provider string, cdn *fakeCDN) *Client {
	t.Helper()
	srv := httptest.NewServer(cdn)
	t.Cleanup(srv.Close)

	c, err := New(provider, WithBaseURL(srv.URL), WithConcurrency(4))
	require.NoError(t, err)
	return c
}

func manifestJSON(t *testing.T, m map[string]any) string {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	return string(data)
}

func TestFlattenNestedObjectTree(t *testing.T) {
	raw := `{"type":"directory","files":{
		"index.js":{"type":"file","size":10},
		"lib":{"type":"directory","files":{"a.js":{"type":"file","size":5}}}
	}}`

	var root MetaNode
	require.NoError(t, json.Unmarshal([]byte(raw), &root))

	assert.Equal(t, []types.FileEntry{
		{Path: "index.js", Size: 10, Kind: types.KindFile},
		{Path: "lib/a.js", Size: 5, Kind: types.KindFile},
	}, Flatten(root))
}

func TestFlattenArrayTree(t *testing.T) {
	raw := `{"path":"/","type":"directory","files":[
		{"path":"/package.json","type":"file","size":300},
		{"path":"/dist","type":"directory","files":[
			{"path":"/dist/index.mjs","type":"file","size":42}
		]}
	]}`

	var root MetaNode
	require.NoError(t, json.Unmarshal([]byte(raw), &root))

	assert.Equal(t, []types.FileEntry{
		{Path: "package.json", Size: 300, Kind: types.KindFile},
		{Path: "dist/index.mjs", Size: 42, Kind: types.KindFile},
	}, Flatten(root))
}

func TestLookupProvider(t *testing.T) {
	p, err := LookupProvider("")
	require.NoError(t, err)
	assert.Equal(t, "https://unpkg.com", p.Base)
	assert.True(t, p.Listing)

	p, err = LookupProvider("jsdelivr")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.jsdelivr.net/npm", p.Base)
	assert.False(t, p.Listing)

	_, err = LookupProvider("npmjs")
	assert.True(t, errors.Is(err, ErrUnknownProvider))

	assert.Equal(t, []string{"esm", "jsdelivr", "skypack", "unpkg"}, Providers())
}

func TestProviderURL(t *testing.T) {
	p, _ := LookupProvider(Skypack)
	assert.Equal(t, "https://cdn.skypack.dev/@scope/x@1.0.0/package.json", p.url("@scope/x@1.0.0", "package.json"))
	assert.Equal(t, "https://cdn.skypack.dev/x/?meta", p.url("x", "?meta"))
}

func TestGetPackageInfoWithListing(t *testing.T) {
	cdn := &fakeCDN{
		spec: "tiny@1.0.0",
		files: map[string]string{
			"package.json": manifestJSON(t, map[string]any{
				"name":             "tiny",
				"version":          "1.0.0",
				"main":             "index.js",
				"module":           "esm/index.js",
				"sideEffects":      false,
				"dependencies":     map[string]string{"dep": "^1.0.0"},
				"peerDependencies": map[string]string{"react": "*"},
			}),
		},
		meta: `{"type":"directory","files":{"index.js":{"type":"file","size":3},"package.json":{"type":"file","size":100}}}`,
	}
	c := newTestClient(t, Unpkg, cdn)

	desc, err := c.GetPackageInfo(context.Background(), "tiny", "1.0.0")
	require.NoError(t, err)

	assert.Equal(t, "tiny", desc.Name)
	assert.Equal(t, "esm/index.js", desc.Module)
	assert.False(t, desc.SideEffects.HasSideEffects())
	assert.Equal(t, map[string]string{"dep": "^1.0.0"}, desc.Dependencies)
	assert.Equal(t, []types.FileEntry{
		{Path: "index.js", Size: 3, Kind: types.KindFile},
		{Path: "package.json", Size: 100, Kind: types.KindFile},
	}, desc.Files)
}

func TestGetPackageInfoProbesWithoutListing(t *testing.T) {
	cdn := &fakeCDN{
		spec: "probe@2.0.0",
		files: map[string]string{
			"package.json":  `{"name":"probe","version":"2.0.0"}`,
			"dist/index.js": "export default 1",
			"README.md":     "# probe",
			"other.js":      "never discovered",
		},
	}
	c := newTestClient(t, JSDelivr, cdn)

	desc, err := c.GetPackageInfo(context.Background(), "probe", "2.0.0")
	require.NoError(t, err)

	assert.Equal(t, []types.FileEntry{
		{Path: "package.json", Size: int64(len(cdn.files["package.json"])), Kind: types.KindFile},
		{Path: "dist/index.js", Size: 16, Kind: types.KindFile},
		{Path: "README.md", Size: 7, Kind: types.KindFile},
	}, desc.Files)
}

func TestGetPackageInfoFallsBackToProbingWhenListingFails(t *testing.T) {
	cdn := &fakeCDN{
		spec: "nolist@1.0.0",
		files: map[string]string{
			"package.json": `{"name":"nolist","version":"1.0.0"}`,
			"index.js":     "x",
		},
	}
	c := newTestClient(t, Unpkg, cdn)

	desc, err := c.GetPackageInfo(context.Background(), "nolist", "1.0.0")
	require.NoError(t, err)
	require.Len(t, desc.Files, 2)
	assert.Equal(t, "package.json", desc.Files[0].Path)
	assert.Equal(t, "index.js", desc.Files[1].Path)
}

func TestGetPackageInfoNotFound(t *testing.T) {
	c := newTestClient(t, Unpkg, &fakeCDN{spec: "exists@1.0.0"})

	_, err := c.GetPackageInfo(context.Background(), "missing", "1.0.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrPackageNotFound))
	assert.Contains(t, err.Error(), "missing@1.0.0")
}

func TestGetPackageInfoUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Unpkg, WithBaseURL(base))
	require.NoError(t, err)

	_, err = c.GetPackageInfo(context.Background(), "react", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRegistryUnreachable))
	assert.False(t, errors.Is(err, types.ErrPackageNotFound))
}

func TestGetPackageInfoServerError(t *testing.T) {
	cdn := &fakeCDN{spec: "flaky@1.0.0", failing: map[string]bool{"package.json": true}}
	c := newTestClient(t, Unpkg, cdn)

	_, err := c.GetPackageInfo(context.Background(), "flaky", "1.0.0")
	assert.True(t, errors.Is(err, types.ErrRegistryUnreachable))
}

func fileEntries(paths ...string) []types.FileEntry {
	out := make([]types.FileEntry, 0, len(paths))
	for _, p := range paths {
		out = append(out, types.FileEntry{Path: p, Kind: types.KindFile})
	}
	return out
}

func TestDownloadFilesSubsetOfListing(t *testing.T) {
	cdn := &fakeCDN{
		spec: "pkg@1.0.0",
		files: map[string]string{
			"index.js":    "export * from './lib/a.js'",
			"lib/a.js":    "export const a = 1",
			"unlisted.js": "not in the listing",
		},
	}
	c := newTestClient(t, Unpkg, cdn)

	desc := &types.PackageDescriptor{
		Name:    "pkg",
		Version: "1.0.0",
		Files: append(fileEntries("index.js", "lib/a.js"),
			types.FileEntry{Path: "lib", Kind: types.KindDirectory}),
	}

	set := c.DownloadFiles(context.Background(), desc)
	assert.Equal(t, []string{"index.js", "lib/a.js"}, set.Paths())
	assert.False(t, set.Has("unlisted.js"))
	assert.False(t, set.Has("lib"))
}

func TestDownloadFilesToleratesOneFailure(t *testing.T) {
	cdn := &fakeCDN{
		spec: "pkg@1.0.0",
		files: map[string]string{
			"a.js": "a", "b.js": "b", "c.js": "c", "d.js": "d", "e.js": "e",
		},
		failing: map[string]bool{"c.js": true},
	}
	c := newTestClient(t, Unpkg, cdn)

	desc := &types.PackageDescriptor{Name: "pkg", Version: "1.0.0", Files: fileEntries("a.js", "b.js", "c.js", "d.js", "e.js")}

	set := c.DownloadFiles(context.Background(), desc)
	assert.Equal(t, 4, set.Len())
	assert.False(t, set.Has("c.js"))
	assert.Equal(t, []string{"c.js"}, set.Missing())
}

func TestDownloadPackage(t *testing.T) {
	cdn := &fakeCDN{
		spec: "pkg@1.0.0",
		files: map[string]string{
			"package.json": `{"name":"pkg","version":"1.0.0"}`,
			"index.js":     "export default 1",
		},
		meta: `{"type":"directory","files":{"index.js":{"type":"file"},"package.json":{"type":"file"}}}`,
	}
	c := newTestClient(t, Unpkg, cdn)

	set, err := c.DownloadPackage(context.Background(), "pkg", "1.0.0")
	require.NoError(t, err)
	content, ok := set.Get("index.js")
	assert.True(t, ok)
	assert.Equal(t, "export default 1", content)
}

func TestResolveMainFilePrefersModule(t *testing.T) {
	desc := &types.PackageDescriptor{Name: "pkg", Version: "1.0.0", Module: "esm/index.js", Main: "index.js"}

	t.Run("module exists", func(t *testing.T) {
		cdn := &fakeCDN{spec: "pkg@1.0.0", files: map[string]string{
			"esm/index.js": "export const esm = true",
			"index.js":     "module.exports = {}",
		}}
		c := newTestClient(t, Unpkg, cdn)

		main, err := c.ResolveMainFile(context.Background(), desc)
		require.NoError(t, err)
		assert.Equal(t, "esm/index.js", main.Path)
		assert.Equal(t, "export const esm = true", main.Contents)
	})

	t.Run("falls through to main", func(t *testing.T) {
		cdn := &fakeCDN{spec: "pkg@1.0.0", files: map[string]string{
			"index.js": "module.exports = {}",
		}}
		c := newTestClient(t, Unpkg, cdn)

		main, err := c.ResolveMainFile(context.Background(), desc)
		require.NoError(t, err)
		assert.Equal(t, "index.js", main.Path)
	})

	t.Run("none", func(t *testing.T) {
		c := newTestClient(t, Unpkg, &fakeCDN{spec: "pkg@1.0.0"})

		_, err := c.ResolveMainFile(context.Background(), desc)
		assert.True(t, errors.Is(err, types.ErrEntryPointUnresolved))
	})
}

func TestMainCandidates(t *testing.T) {
	desc := &types.PackageDescriptor{Module: "./esm/index.js", Main: "index.js"}
	assert.Equal(t, []string{"esm/index.js", "index.js", "index.mjs", "dist/index.js", "lib/index.js"}, MainCandidates(desc))

	assert.Equal(t, []string{"index.js", "index.mjs", "dist/index.js", "lib/index.js"},
		MainCandidates(&types.PackageDescriptor{}))
}

func TestRateLimitedClientStillCompletes(t *testing.T) {
	cdn := &fakeCDN{spec: "pkg@1.0.0", files: map[string]string{"a.js": "a", "b.js": "b"}}
	srv := httptest.NewServer(cdn)
	t.Cleanup(srv.Close)

	c, err := New(Unpkg, WithBaseURL(srv.URL), WithRateLimit(1000))
	require.NoError(t, err)

	set := c.DownloadFiles(context.Background(), &types.PackageDescriptor{Name: "pkg", Version: "1.0.0", Files: fileEntries("a.js", "b.js")})
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, int32(2), cdn.requests.Load())
}
