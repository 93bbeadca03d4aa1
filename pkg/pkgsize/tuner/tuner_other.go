//go:build !darwin && !linux

package tuner

import "runtime"

// Detect reports the CPU count and falls back to defaults for memory.
func Detect() (SystemResources, error) {
	return SystemResources{
		CPUCores:     runtime.NumCPU(),
		TotalRAM:     defaultTotalRAM,
		AvailableRAM: defaultTotalRAM / 2,
	}, nil
}
