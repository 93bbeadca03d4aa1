package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/history"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

func statsReport() *Report {
	return &Report{
		Stats: &types.PackageStats{
			Name:             "react",
			Version:          "18.2.0",
			Size:             2048,
			GzipSize:         1024,
			UnminifiedSize:   3072,
			DependencyCount:  1,
			PeerDependencies: []string{},
			Modules: []types.ModuleSize{
				{Path: "index.js", BytesInOutput: 100},
				{Path: "node_modules/loose-envify/index.js", BytesInOutput: 900},
			},
			Measurement: types.Measured,
			Strategy:    types.StrategyCDN,
		},
		Meta: Meta{Cached: true, Duration: 1500 * time.Millisecond},
	}
}

func exportsReport() *Report {
	return &Report{
		Exports: &types.PackageExportSizes{
			Name:    "lodash",
			Version: "4.17.21",
			Assets: []types.ExportSize{
				{Path: "map.js", Size: 2048, GzipSize: 512, ExportName: "map"},
				{Path: "a|b.js", Size: 1024, GzipSize: 256, ExportName: "a|b"},
			},
		},
	}
}

func historyReport() *Report {
	return &Report{History: []history.Entry{
		{ID: "id-1", Timestamp: time.Now().Add(-time.Hour), Kind: history.KindStats, Name: "react", Version: "18.2.0", Size: 2048, GzipSize: 1024},
	}}
}

func format(t *testing.T, name string, r *Report) string {
	t.Helper()
	f, err := Get(name)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestRegistryAvailable(t *testing.T) {
	assert.Equal(t,
		[]string{"csv", "json", "jsonl", "markdown", "plain", "pretty", "template", "tsv", "yaml"},
		Available())

	_, err := Get("xml")
	assert.Error(t, err)
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	r.Register("x", func() Formatter { return &JSONFormatter{} })
	r.Register("x", func() Formatter { return &CSVFormatter{} })

	f, err := r.Get("x")
	require.NoError(t, err)
	assert.IsType(t, &CSVFormatter{}, f)
}

func TestCSVFormatter(t *testing.T) {
	out := format(t, "csv", statsReport())
	assert.Equal(t, "PACKAGE,SIZE,GZIP,DEPENDENCIES,MEASUREMENT\nreact@18.2.0,2048,1024,1,measured\n", out)

	out = format(t, "csv", exportsReport())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "SIZE,GZIP,EXPORT,PATH", lines[0])
	assert.Equal(t, "2048,512,map,map.js", lines[1])
}

func TestTSVFormatter(t *testing.T) {
	out := format(t, "tsv", exportsReport())
	assert.Equal(t, "SIZE\tGZIP\tEXPORT\tPATH\n2048\t512\tmap\tmap.js\n1024\t256\ta|b\ta|b.js\n", out)
}

func TestMarkdownFormatterEscapesPipes(t *testing.T) {
	out := format(t, "markdown", exportsReport())
	assert.Contains(t, out, "| SIZE | GZIP | EXPORT | PATH |\n| --- | --- | --- | --- |\n")
	assert.Contains(t, out, "| 2.0 KiB | 512 B | map | map.js |")
	assert.Contains(t, out, `a\|b.js`)
}

func TestPlainFormatter(t *testing.T) {
	out := format(t, "plain", historyReport())
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "react@18.2.0")
	assert.Contains(t, out, "2.0 KiB")
	assert.NotContains(t, out, "\x1b[")
}

func TestJSONFormatter(t *testing.T) {
	out := format(t, "json", statsReport())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.NotContains(t, decoded, "exports")

	stats := decoded["stats"].(map[string]any)
	assert.Equal(t, "react", stats["name"])
	assert.EqualValues(t, 1024, stats["gzipSize"])
	assert.Equal(t, true, decoded["meta"].(map[string]any)["cached"])
}

func TestJSONLFormatter(t *testing.T) {
	out := format(t, "jsonl", exportsReport())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first types.ExportSize
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "map", first.ExportName)

	out = format(t, "jsonl", statsReport())
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestYAMLFormatterUsesJSONKeys(t *testing.T) {
	out := format(t, "yaml", statsReport())

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	stats := decoded["stats"].(map[string]any)
	assert.Equal(t, 1024, stats["gzipSize"])
	assert.Equal(t, "measured", stats["measurement"])
}

func TestTemplateFormatter(t *testing.T) {
	f := NewTemplateFormatter(`{{.Stats.Name}} {{bytes .Stats.Size}} {{ratio .Stats.GzipSize .Stats.Size}}`)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, statsReport()))
	assert.Equal(t, "react 2.0 KiB 50%", buf.String())

	f.SetTemplate(`{{range .Exports.Assets}}{{.ExportName}};{{end}}`)
	buf.Reset()
	require.NoError(t, f.Format(&buf, exportsReport()))
	assert.Equal(t, "map;a|b;", buf.String())

	f.SetTemplate(`{{.Nope`)
	assert.Error(t, f.Format(&buf, statsReport()))
}

func TestDefaultTemplate(t *testing.T) {
	out := format(t, "template", statsReport())
	assert.Equal(t, "react@18.2.0\t2.0 KiB\t1.0 KiB\n", out)
}

func TestPrettyFormatterStats(t *testing.T) {
	out := format(t, "pretty", statsReport())

	assert.Contains(t, out, "react@18.2.0")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "cached")
	assert.Contains(t, out, "Largest modules")

	// Largest module first.
	assert.Less(t,
		strings.Index(out, "node_modules/loose-envify/index.js"),
		strings.Index(out, "  index.js"))
}

func TestPrettyFormatterApproximate(t *testing.T) {
	r := statsReport()
	r.Stats.Measurement = types.Approximate
	r.Stats.Strategy = types.StrategySandbox
	r.Meta.Warnings = []string{"parse time skipped"}

	out := format(t, "pretty", r)
	assert.Contains(t, out, "approximate")
	assert.Contains(t, out, "estimates")
	assert.Contains(t, out, "parse time skipped")
}

func TestPrettyFormatterExportsAndHistory(t *testing.T) {
	out := format(t, "pretty", exportsReport())
	assert.Contains(t, out, "Exports:")
	assert.Contains(t, out, "3.0 KiB")

	empty := &Report{Exports: &types.PackageExportSizes{Name: "x", Version: "1.0.0"}}
	assert.Contains(t, format(t, "pretty", empty), "No exports matched")

	out = format(t, "pretty", historyReport())
	assert.Contains(t, out, "1 hour ago")

	assert.Contains(t, format(t, "pretty", &Report{}), "No analyses recorded yet")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
}
