// Package config provides configuration management for pkgsize.
package config

import "time"

// Default configuration values for pkgsize.
const (
	// DefaultCDN is the registry provider used when none is configured.
	DefaultCDN = "unpkg"

	// DefaultMinifier is the minification strategy.
	DefaultMinifier = "fast"

	// DefaultOutput is the output format of the CLI.
	DefaultOutput = "pretty"

	// DefaultParseTimeLimit caps a debug parse-time evaluation.
	DefaultParseTimeLimit = 5 * time.Second

	// DefaultMemoryEntries is the size of the in-memory result cache.
	DefaultMemoryEntries = 256

	// DefaultHistoryRetention is the number of history records kept.
	DefaultHistoryRetention = 100

	// DefaultMetricsAddr is where the daemon serves metrics. Empty disables
	// the endpoint.
	DefaultMetricsAddr = ""

	appName = "pkgsize"
)

// defaultComponentLevels are the per-component log levels written by
// WriteDefault and used when the file has none.
var defaultComponentLevels = map[string]string{
	"registry": "info",
	"bundler":  "info",
	"analyzer": "info",
	"cache":    "warn",
	"daemon":   "info",
	"tui":      "info",
}
