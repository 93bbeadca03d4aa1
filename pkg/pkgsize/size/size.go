// Package size measures bundled code: byte length, compressed length and,
// for debugging, how long a JS runtime takes to load it.
package size

import (
	"io"
	"math"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// FallbackRatio estimates the compressed size when no compressor is set.
const FallbackRatio = 0.7

// Size is the UTF-8 byte length of code.
func Size(code string) int64 {
	return int64(len(code))
}

// Estimate returns round(n * FallbackRatio), rounding half away from zero.
func Estimate(n int64) int64 {
	return int64(math.Round(float64(n) * FallbackRatio))
}

// Compressor streams input through a compression codec. Compress returns
// the total number of compressed bytes emitted.
type Compressor interface {
	Compress(r io.Reader) (int64, error)
}

// GzipCompressor compresses with gzip at a fixed level.
type GzipCompressor struct {
	// Level is a gzip level; zero uses gzip.BestCompression.
	Level int
}

var _ Compressor = GzipCompressor{}

// Compress implements Compressor.
func (g GzipCompressor) Compress(r io.Reader) (int64, error) {
	level := g.Level
	if level == 0 {
		level = gzip.BestCompression
	}

	var out countingWriter
	zw, err := gzip.NewWriterLevel(&out, level)
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(zw, r); err != nil {
		_ = zw.Close()
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return out.n, nil
}

// countingWriter sums the lengths of the chunks written to it.
type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

// Evaluator loads code in a disposable runtime.
type Evaluator interface {
	Evaluate(code string) error
}

// Analyzer computes sizes. The zero value uses the fallback estimate and
// does not measure parse time.
type Analyzer struct {
	Compressor Compressor
	Evaluator  Evaluator
}

// NewAnalyzer returns an analyzer using gzip. Parse time is measured only
// when evaluator is non-nil.
func NewAnalyzer(evaluator Evaluator) *Analyzer {
	return &Analyzer{Compressor: GzipCompressor{}, Evaluator: evaluator}
}

// Size is the UTF-8 byte length of code.
func (a *Analyzer) Size(code string) int64 {
	return Size(code)
}

// CompressedSize compresses code, or estimates when there is no compressor
// or compression fails.
func (a *Analyzer) CompressedSize(code string) int64 {
	if a == nil || a.Compressor == nil {
		return Estimate(Size(code))
	}
	n, err := a.Compressor.Compress(strings.NewReader(code))
	if err != nil {
		logger.Warn("compression failed, estimating", "error", err)
		return Estimate(Size(code))
	}
	return n
}

// ParseTime returns how long the evaluator took with code. A failed
// evaluation still reports the time spent until it failed. ok is false
// when no evaluator is configured.
func (a *Analyzer) ParseTime(code string) (elapsed time.Duration, ok bool) {
	if a == nil || a.Evaluator == nil {
		return 0, false
	}
	start := time.Now()
	if err := a.Evaluator.Evaluate(code); err != nil {
		logger.Debug("evaluation failed", "error", err)
	}
	return time.Since(start), true
}
