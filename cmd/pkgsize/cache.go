package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/pkgsize/pkg/client"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/cache"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/config"
)

// errDaemonHoldsCache is returned when pkgsized has the cache open.
var errDaemonHoldsCache = errors.New("pkgsized has the cache open; stop it first with 'pkgsize daemon stop'")

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the result cache",
	Long: `Commands for managing the pkgsize result cache.

Results for exact package versions are cached so repeat analyses return
immediately. Ranges and tags are always resolved again. Cache data is stored
in the XDG cache directory (typically ~/.cache/pkgsize/results).`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached results",
	Long:  `Removes all cached results. The next analysis of each package builds it again.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if client.IsDaemonRunning(cfg.PIDPath()) {
			return errDaemonHoldsCache
		}

		c, err := cache.Open(cfg.CachePath(), cfg.Cache.MemoryEntries)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer c.Close()

		n, err := c.Clear()
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		if n == 0 {
			printInfo("Cache is already empty.")
			return nil
		}
		printInfo("Cache cleared (%s entries).", humanize.Comma(int64(n)))
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Long: `Displays the cache location, entry count and size on disk.
While pkgsized is running the figures come from the daemon, including hit rates.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		stats, source, err := readCacheStats(cfg)
		if err != nil {
			return err
		}

		fmt.Printf("Cache location: %s\n", cfg.CachePath())
		fmt.Printf("Cache entries:  %s\n", humanize.Comma(int64(stats.Entries)))
		fmt.Printf("Cache size:     %s\n", humanize.Bytes(uint64(max(stats.DiskBytes, 0))))
		if source == "pkgsized" {
			fmt.Printf("Memory tier:    %d entries\n", stats.MemoryEntries)
			fmt.Printf("Hits/misses:    %d/%d\n", stats.Hits, stats.Misses)
		}
		printVerbose("stats read from %s", source)
		return nil
	},
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show cache location",
	Long:  `Prints the path to the cache directory.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println(cfg.CachePath())
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

// readCacheStats asks the daemon when it runs and opens the cache directly
// otherwise. The daemon holds the store lock, so the two never both apply.
func readCacheStats(cfg *config.Config) (cache.Stats, string, error) {
	paths := client.PathsFromConfig(cfg)
	if client.IsDaemonRunning(paths.PID) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		c, err := client.ConnectWithContext(ctx, paths.Socket)
		if err != nil {
			return cache.Stats{}, "", fmt.Errorf("failed to connect to daemon: %w", err)
		}
		defer c.Close()

		status, err := c.Status(ctx)
		if err != nil {
			return cache.Stats{}, "", fmt.Errorf("failed to get daemon status: %w", err)
		}
		if status.Cache == nil {
			return cache.Stats{}, "pkgsized", nil
		}
		return *status.Cache, "pkgsized", nil
	}

	c, err := cache.Open(cfg.CachePath(), cfg.Cache.MemoryEntries)
	if err != nil {
		return cache.Stats{}, "", fmt.Errorf("failed to open cache: %w", err)
	}
	defer c.Close()

	stats, err := c.Stats()
	if err != nil {
		return cache.Stats{}, "", fmt.Errorf("failed to read cache stats: %w", err)
	}
	return stats, "disk", nil
}
