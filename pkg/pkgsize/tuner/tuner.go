// Package tuner detects system resources and derives fan-out limits for
// pkgsize from them.
package tuner

import "github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"

var logger = logging.Get("tuner")

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the available (free) RAM in bytes.
	// This may be an estimate based on system heuristics.
	AvailableRAM int64
}

// defaultTotalRAM is assumed when memory cannot be detected.
const defaultTotalRAM = 8 << 30
