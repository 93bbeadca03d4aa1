package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	tests := []struct {
		spec        string
		wantName    string
		wantVersion string
		wantErr     bool
	}{
		{spec: "react", wantName: "react"},
		{spec: "react@18.2.0", wantName: "react", wantVersion: "18.2.0"},
		{spec: "@babel/core", wantName: "@babel/core"},
		{spec: "@babel/core@7.24.0", wantName: "@babel/core", wantVersion: "7.24.0"},
		{spec: "lodash@^4", wantName: "lodash", wantVersion: "^4"},
		{spec: "  preact  ", wantName: "preact"},
		{spec: "", wantErr: true},
		{spec: "react@", wantErr: true},
		{spec: "not a name", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			name, version, err := ParseSpec(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidSpec))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestFormatSpec(t *testing.T) {
	assert.Equal(t, "react", FormatSpec("react", ""))
	assert.Equal(t, "@scope/x@1.0.0", FormatSpec("@scope/x", "1.0.0"))
}

func TestSideEffectsUnmarshal(t *testing.T) {
	var d PackageDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","sideEffects":false}`), &d))
	assert.False(t, d.SideEffects.HasSideEffects())

	d = PackageDescriptor{}
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","sideEffects":["*.css"]}`), &d))
	assert.True(t, d.SideEffects.HasSideEffects())
	assert.Equal(t, []string{"*.css"}, d.SideEffects.Globs)

	d = PackageDescriptor{}
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a"}`), &d))
	assert.True(t, d.SideEffects.HasSideEffects(), "undeclared sideEffects must be assumed")

	d = PackageDescriptor{}
	assert.Error(t, json.Unmarshal([]byte(`{"sideEffects":42}`), &d))
}

func TestDescriptorFlags(t *testing.T) {
	d := &PackageDescriptor{
		Module:      "esm/index.js",
		JSNext:      "esm/index.js",
		Type:        "module",
		SideEffects: SideEffects{Set: true, Value: false},
	}

	assert.Equal(t, Flags{
		HasJSNext:      true,
		HasJSModule:    true,
		IsModuleType:   true,
		HasSideEffects: false,
	}, d.Flags())

	assert.Equal(t, Flags{HasSideEffects: true}, (&PackageDescriptor{Main: "index.js"}).Flags())
}

func TestFileCount(t *testing.T) {
	d := &PackageDescriptor{Files: []FileEntry{
		{Path: "index.js", Kind: KindFile},
		{Path: "lib", Kind: KindDirectory},
		{Path: "lib/a.js", Kind: KindFile},
	}}
	assert.Equal(t, 2, d.FileCount())
}

func TestAnalysisError(t *testing.T) {
	err := WrapAnalysis("react", "18.2.0", ErrPackageNotFound)

	assert.Equal(t, "react@18.2.0: package not found", err.Error())
	assert.True(t, errors.Is(err, ErrPackageNotFound))

	var ae *AnalysisError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "react", ae.Name)

	// Wrapping twice keeps the innermost request context.
	again := WrapAnalysis("other", "", err)
	assert.Equal(t, err, again)

	assert.NoError(t, WrapAnalysis("react", "", nil))
}

func TestBundleError(t *testing.T) {
	err := &BundleError{Messages: []string{"Unexpected token", "Expected \";\""}}
	assert.Equal(t, `bundle failed: Unexpected token; Expected ";"`, err.Error())
	assert.Equal(t, "bundle failed", (&BundleError{}).Error())
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"1024", 1024},
		{"10K", 10 * 1024},
		{"1.5MiB", 1572864},
		{"2G", 2 * 1024 * 1024 * 1024},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "-1", "abc"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "1.0 KiB", FormatSize(1024))
	assert.Equal(t, "0 B", FormatSize(-5))
}
