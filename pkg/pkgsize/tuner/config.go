package tuner

// Fan-out limits.
const (
	maxFetchWorkers = 64
	minFetchWorkers = 8

	maxBundleWorkers = 16
	minBundleWorkers = 1

	minMemoryEntries = 64
	maxMemoryEntries = 4096
)

// Memory-based sizing constants.
const (
	// bytesPerBundle estimates the peak heap of one esbuild run over a
	// downloaded package, including the minifier and compressor buffers.
	bytesPerBundle = 128 << 20

	// bytesPerCacheEntry estimates one encoded result in the LRU tier.
	bytesPerCacheEntry = 16 << 10

	// cacheMemoryFraction is the share of available RAM given to the LRU tier.
	cacheMemoryFraction = 0.01

	// bundleMemoryFraction is the share of available RAM concurrent bundles may use.
	bundleMemoryFraction = 0.25
)

// OptimalConfig contains tuned limits for the detected system resources.
type OptimalConfig struct {
	// FetchWorkers bounds parallel registry requests. Fetches wait on the
	// network, so this is well above the core count.
	FetchWorkers int

	// BundleWorkers bounds parallel bundles in export-size runs. Bundling
	// is CPU and memory bound.
	BundleWorkers int

	// MemoryEntries sizes the in-memory result cache.
	MemoryEntries int
}

// Calculate returns optimal configuration based on system resources.
//
//   - FetchWorkers: NumCPU * 8, clamped to [8, 64]
//   - BundleWorkers: NumCPU, further capped by how many bundles fit in a
//     quarter of available RAM, clamped to [1, 16]
//   - MemoryEntries: 1% of available RAM, clamped to [64, 4096]
func Calculate(resources SystemResources) OptimalConfig {
	fetch := resources.CPUCores * 8
	fetch = max(fetch, minFetchWorkers)
	fetch = min(fetch, maxFetchWorkers)

	bundle := resources.CPUCores
	if fit := int(float64(resources.AvailableRAM) * bundleMemoryFraction / bytesPerBundle); fit < bundle {
		bundle = fit
	}
	bundle = max(bundle, minBundleWorkers)
	bundle = min(bundle, maxBundleWorkers)

	entries := int(float64(resources.AvailableRAM) * cacheMemoryFraction / bytesPerCacheEntry)
	entries = max(entries, minMemoryEntries)
	entries = min(entries, maxMemoryEntries)

	return OptimalConfig{
		FetchWorkers:  fetch,
		BundleWorkers: bundle,
		MemoryEntries: entries,
	}
}

// CalculateWithOverrides applies user overrides to the optimal config.
// A concurrency override greater than 0 replaces both worker counts, still
// respecting each cap. A memoryEntries override greater than 0 replaces
// the cache size.
func CalculateWithOverrides(resources SystemResources, concurrency, memoryEntries int) OptimalConfig {
	config := Calculate(resources)

	if concurrency > 0 {
		config.FetchWorkers = min(concurrency, maxFetchWorkers)
		config.BundleWorkers = min(concurrency, maxBundleWorkers)
	}
	if memoryEntries > 0 {
		config.MemoryEntries = memoryEntries
	}
	return config
}

// Tuned detects resources and applies overrides. Detection failures fall
// back to the values Detect still reports.
func Tuned(concurrency, memoryEntries int) OptimalConfig {
	resources, err := Detect()
	if err != nil {
		logger.Debug("resource detection incomplete", "error", err)
	}
	return CalculateWithOverrides(resources, concurrency, memoryEntries)
}
