package size

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeIsUTF8ByteLength(t *testing.T) {
	assert.Equal(t, int64(0), Size(""))
	assert.Equal(t, int64(5), Size("hello"))
	assert.Equal(t, int64(3), Size("€"))
}

func TestEstimateIsExact(t *testing.T) {
	tests := []struct {
		n, want int64
	}{
		{0, 0},
		{1, 1},   // 0.7 rounds up
		{5, 4},   // 3.5 rounds half away from zero
		{10, 7},
		{15, 11}, // 10.5
		{1000, 700},
		{1001, 701}, // 700.7
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Estimate(tt.n), "Estimate(%d)", tt.n)
	}
}

func TestCompressedSizeFallbackWithoutCompressor(t *testing.T) {
	code := strings.Repeat("const a = 1;\n", 37)
	var a Analyzer

	got := a.CompressedSize(code)
	assert.Equal(t, Estimate(int64(len(code))), got)
	// Repeated calls are reproducible.
	assert.Equal(t, got, a.CompressedSize(code))

	var nilAnalyzer *Analyzer
	assert.Equal(t, got, nilAnalyzer.CompressedSize(code))
}

func TestGzipCompressorCountsCompressedBytes(t *testing.T) {
	code := strings.Repeat("export function f() { return 42; }\n", 200)

	n, err := GzipCompressor{}.Compress(strings.NewReader(code))
	require.NoError(t, err)

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	require.NoError(t, err)
	_, err = zw.Write([]byte(code))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	assert.Equal(t, int64(buf.Len()), n)
	assert.Less(t, n, int64(len(code)))
}

type failingCompressor struct{}

func (failingCompressor) Compress(io.Reader) (int64, error) {
	return 0, errors.New("codec broke")
}

func TestCompressedSizeFallsBackOnCompressorError(t *testing.T) {
	a := Analyzer{Compressor: failingCompressor{}}
	assert.Equal(t, Estimate(10), a.CompressedSize("0123456789"))
}

type slowEvaluator struct {
	err error
}

func (s slowEvaluator) Evaluate(string) error {
	time.Sleep(10 * time.Millisecond)
	return s.err
}

func TestParseTime(t *testing.T) {
	a := NewAnalyzer(slowEvaluator{})
	elapsed, ok := a.ParseTime("1+1")
	assert.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
}

func TestParseTimeReportsElapsedOnFailure(t *testing.T) {
	a := NewAnalyzer(slowEvaluator{err: errors.New("SyntaxError")})
	elapsed, ok := a.ParseTime("}{")
	assert.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
}

func TestParseTimeDisabledWithoutEvaluator(t *testing.T) {
	_, ok := NewAnalyzer(nil).ParseTime("1")
	assert.False(t, ok)
}

func TestGojaEvaluator(t *testing.T) {
	g := &GojaEvaluator{}

	assert.NoError(t, g.Evaluate(`var x = 1; module.exports = { x: x }; exports.y = 2;`))
	assert.Error(t, g.Evaluate(`function (`), "syntax errors are reported")
	assert.Error(t, g.Evaluate(`undefinedFunction()`), "runtime errors are reported")
	assert.Error(t, g.Evaluate(`require("fs")`), "no host module loader")
}

func TestGojaEvaluatorInterruptsRunawayCode(t *testing.T) {
	g := &GojaEvaluator{Limit: 50 * time.Millisecond}

	start := time.Now()
	err := g.Evaluate(`for (;;) {}`)
	assert.ErrorIs(t, err, ErrEvaluationTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGojaEvaluatorPrepare(t *testing.T) {
	called := false
	g := &GojaEvaluator{Prepare: func(code string) (string, error) {
		called = true
		return strings.Replace(code, "export ", "", 1), nil
	}}

	assert.NoError(t, g.Evaluate("export var a = 1;"))
	assert.True(t, called)

	g.Prepare = func(string) (string, error) { return "", errors.New("nope") }
	assert.Error(t, g.Evaluate("1"))
}
