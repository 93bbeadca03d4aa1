package cache

import (
	"testing"
	"time"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

func openTestCache(t *testing.T, memoryEntries int) *Cache {
	t.Helper()
	c, err := Open(t.TempDir(), memoryEntries)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheable(t *testing.T) {
	tests := map[string]bool{
		"1.2.3":        true,
		"0.0.1":        true,
		"1.2.3-beta.1": true,
		"18.2.0-rc.0":  true,
		"":             false,
		"latest":       false,
		"next":         false,
		"1.2":          false,
		"1":            false,
		"^1.2.3":       false,
		"~1.2.3":       false,
		">=1.0.0":      false,
		"1.x":          false,
		"v1.2.3":       false,
	}
	for v, want := range tests {
		if got := Cacheable(v); got != want {
			t.Errorf("Cacheable(%q) = %v, want %v", v, got, want)
		}
	}
}

func TestKeyRoundTrip(t *testing.T) {
	key := MakeKey(KindStats, "@scope/pkg", "1.0.0", "abc")
	kind, spec, digest, ok := ParseKey(key)
	if !ok {
		t.Fatal("ParseKey failed")
	}
	if kind != KindStats || spec != "@scope/pkg@1.0.0" || digest != "abc" {
		t.Errorf("ParseKey = %q %q %q", kind, spec, digest)
	}

	if _, _, _, ok := ParseKey([]byte("v0\x00stats\x00a@1\x00d")); ok {
		t.Error("keys from another schema should not parse")
	}
}

func TestDigest(t *testing.T) {
	a := Digest("unpkg", "fast")
	if a != Digest("unpkg", "fast") {
		t.Error("Digest is not stable")
	}
	if a == Digest("unpkg", "ast-based") {
		t.Error("different options share a digest")
	}
	if Digest("ab", "c") == Digest("a", "bc") {
		t.Error("field boundaries are not part of the digest")
	}
	if len(a) != 16 {
		t.Errorf("len(Digest) = %d, want 16", len(a))
	}
}

func TestStatsRoundTrip(t *testing.T) {
	c := openTestCache(t, 4)
	parse := 12 * time.Millisecond
	stats := &types.PackageStats{
		Name:             "react",
		Version:          "18.2.0",
		Size:             6400,
		GzipSize:         2600,
		ParseTime:        &parse,
		PeerDependencies: []string{},
		Measurement:      types.Measured,
		Strategy:         types.StrategyCDN,
	}

	if err := c.PutStats("d1", stats); err != nil {
		t.Fatalf("PutStats failed: %v", err)
	}

	got, ok := c.GetStats("react", "18.2.0", "d1")
	if !ok {
		t.Fatal("GetStats missed a stored entry")
	}
	if got.Size != 6400 || got.GzipSize != 2600 || got.ParseTime == nil || *got.ParseTime != parse {
		t.Errorf("GetStats = %+v", got)
	}

	if _, ok := c.GetStats("react", "18.2.0", "other-digest"); ok {
		t.Error("a different options digest should miss")
	}

	s, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if s.Entries != 1 || s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestInexactAndApproximateNotStored(t *testing.T) {
	c := openTestCache(t, 4)

	if err := c.PutStats("d", &types.PackageStats{Name: "react", Version: "latest", Measurement: types.Measured}); err != nil {
		t.Fatal(err)
	}
	if err := c.PutStats("d", &types.PackageStats{Name: "react", Version: "1.0.0", Measurement: types.Approximate}); err != nil {
		t.Fatal(err)
	}

	s, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if s.Entries != 0 {
		t.Errorf("Entries = %d, want 0", s.Entries)
	}
	if _, ok := c.GetStats("react", "latest", "d"); ok {
		t.Error("latest should never hit")
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	exports := &types.PackageExportSizes{Name: "lodash", Version: "4.17.21", Assets: []types.ExportSize{
		{Path: "map.js", Size: 100, GzipSize: 70, ExportName: "map"},
	}}
	if err := c.PutExports("d", exports); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = Open(dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	got, ok := c.GetExports("lodash", "4.17.21", "d")
	if !ok {
		t.Fatal("entry did not survive reopen")
	}
	if len(got.Assets) != 1 || got.Assets[0].ExportName != "map" {
		t.Errorf("GetExports = %+v", got)
	}
}

func TestClear(t *testing.T) {
	c := openTestCache(t, 4)
	for _, v := range []string{"1.0.0", "1.0.1", "1.0.2"} {
		if err := c.PutStats("d", &types.PackageStats{Name: "x", Version: v, Measurement: types.Measured}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Clear removed %d, want 3", n)
	}
	if _, ok := c.GetStats("x", "1.0.0", "d"); ok {
		t.Error("entry survived Clear")
	}
}

func TestLRUEviction(t *testing.T) {
	c := openTestCache(t, 1)
	for _, v := range []string{"1.0.0", "2.0.0"} {
		if err := c.PutStats("d", &types.PackageStats{Name: "x", Version: v, Measurement: types.Measured}); err != nil {
			t.Fatal(err)
		}
	}

	if c.memory.Len() != 1 {
		t.Errorf("memory tier holds %d entries, want 1", c.memory.Len())
	}
	if _, ok := c.GetStats("x", "1.0.0", "d"); !ok {
		t.Error("evicted entry should still be read from disk")
	}
}
