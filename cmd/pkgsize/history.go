package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/config"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/history"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/output"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View analysis history",
	Long: `View recent package analyses.

Every analysis and export sizes run is recorded with its sizes, so earlier
results can be compared without analyzing the package again. The oldest
entries are pruned once history.retention is exceeded.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a recorded analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove entries beyond the retention limit",
	Long:  `Keep the newest history.retention entries and remove the rest.`,
	RunE:  runHistoryPrune,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all history entries",
	RunE:  runHistoryClear,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of entries to show (0 for all)")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyPruneCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory returns the configured history store.
func openHistory() (*history.History, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	h, err := history.New(cfg.HistoryPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}
	return h, cfg, nil
}

// runHistory lists recent analyses.
func runHistory(_ *cobra.Command, _ []string) error {
	h, cfg, err := openHistory()
	if err != nil {
		return err
	}

	entries, err := h.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 && (cfg.Output == "" || cfg.Output == config.DefaultOutput) {
		printInfo("No history entries found.")
		printInfo("Run 'pkgsize <package>' to analyze a package.")
		return nil
	}

	return writeReport(&output.Report{History: entries}, cfg.Output)
}

// runHistoryShow prints one entry.
func runHistoryShow(_ *cobra.Command, args []string) error {
	h, cfg, err := openHistory()
	if err != nil {
		return err
	}

	entry, err := h.Get(args[0])
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("%w (list entries with 'pkgsize history')", err)
	}
	if err != nil {
		return err
	}

	if cfg.Output != "" && cfg.Output != config.DefaultOutput {
		return writeReport(&output.Report{History: []history.Entry{*entry}}, cfg.Output)
	}

	fmt.Printf("ID:          %s\n", entry.ID)
	fmt.Printf("Package:     %s\n", types.FormatSpec(entry.Name, entry.Version))
	fmt.Printf("Kind:        %s\n", entry.Kind)
	fmt.Printf("When:        %s (%s)\n", entry.Timestamp.Format("2006-01-02 15:04:05"), humanize.Time(entry.Timestamp))
	fmt.Printf("Size:        %s\n", types.FormatSize(entry.Size))
	fmt.Printf("Gzip:        %s\n", types.FormatSize(entry.GzipSize))
	if entry.Kind == history.KindExports {
		fmt.Printf("Exports:     %d\n", entry.Exports)
	}
	if entry.Measurement != "" {
		fmt.Printf("Measurement: %s\n", entry.Measurement)
	}
	if entry.Strategy != "" {
		fmt.Printf("Strategy:    %s\n", entry.Strategy)
	}
	fmt.Printf("Duration:    %s\n", formatDuration(entry.Duration))
	fmt.Printf("Cached:      %t\n", entry.Cached)
	return nil
}

// runHistoryPrune applies the retention limit.
func runHistoryPrune(_ *cobra.Command, _ []string) error {
	h, cfg, err := openHistory()
	if err != nil {
		return err
	}

	removed, err := h.Prune(cfg.History.Retention)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}

	printInfo("Removed %d history entries (keeping %d)", removed, cfg.History.Retention)
	return nil
}

// runHistoryClear removes every entry.
func runHistoryClear(_ *cobra.Command, _ []string) error {
	h, _, err := openHistory()
	if err != nil {
		return err
	}

	removed, err := h.Clear()
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	printInfo("Removed %d history entries", removed)
	return nil
}
