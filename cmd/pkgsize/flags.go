package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/pkgsize/pkg/daemon"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/config"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/filter"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// addFilterFlags registers the export list flags on cmd.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("min-size", "s", "", "hide exports smaller than this (e.g., 500, 2K)")
	cmd.Flags().StringP("include", "I", "", "only exports whose path matches (comma-separated globs)")
	cmd.Flags().StringSliceP("exclude", "e", nil, "hide exports whose path matches (repeatable)")
	cmd.Flags().String("sort", "size", "sort by: size, gzip, path, name")
	cmd.Flags().BoolP("reverse", "r", false, "reverse the natural sort order")
	cmd.Flags().IntP("limit", "n", 0, "show at most this many exports (0=all)")

	_ = viper.BindPFlag("min_size", cmd.Flags().Lookup("min-size"))
	_ = viper.BindPFlag("include", cmd.Flags().Lookup("include"))
	_ = viper.BindPFlag("exclude", cmd.Flags().Lookup("exclude"))
	_ = viper.BindPFlag("sort", cmd.Flags().Lookup("sort"))
	_ = viper.BindPFlag("reverse", cmd.Flags().Lookup("reverse"))
	_ = viper.BindPFlag("limit", cmd.Flags().Lookup("limit"))
}

// applyFlags copies flags that were set on the command line over cfg.
func applyFlags(cfg *config.Config) {
	if viper.IsSet("cdn") {
		cfg.CDN = viper.GetString("cdn")
	}
	if viper.IsSet("minifier") {
		cfg.Minifier = viper.GetString("minifier")
	}
	if viper.IsSet("debug") {
		cfg.Debug = viper.GetBool("debug")
	}
	if viper.IsSet("custom_imports") {
		cfg.CustomImports = viper.GetStringSlice("custom_imports")
	}
	if viper.IsSet("use_web_container") {
		cfg.UseWebContainer = viper.GetBool("use_web_container")
	}
	if viper.IsSet("include_dependency_sizes") {
		cfg.IncludeDependencySizes = viper.GetBool("include_dependency_sizes")
	}
	if viper.IsSet("output") {
		cfg.Output = viper.GetString("output")
	}
}

// buildFilterOptions creates the export filter from the CLI flags. The
// same options go to the daemon or, in-process, through Build.
func buildFilterOptions() (daemon.FilterOptions, error) {
	var opts daemon.FilterOptions

	if minSizeStr := viper.GetString("min_size"); minSizeStr != "" {
		minSize, err := types.ParseSize(minSizeStr)
		if err != nil {
			return opts, fmt.Errorf("invalid min-size %q: %w", minSizeStr, err)
		}
		opts.MinSize = minSize
	}

	opts.Include = parseCommaSeparated(viper.GetString("include"))
	opts.Exclude = viper.GetStringSlice("exclude")

	if limit := viper.GetInt("limit"); limit > 0 {
		opts.Limit = limit
	}

	sortBy := viper.GetString("sort")
	field, err := filter.ParseSortField(sortBy)
	if err != nil {
		return opts, err
	}
	opts.SortBy = field.String()

	// --reverse flips the field's natural order: largest first for sizes,
	// A-Z for names and paths.
	if viper.GetBool("reverse") {
		descending := field.Ascending()
		opts.SortDescending = &descending
	}

	return opts, nil
}

// parseCommaSeparated splits a comma-separated string and trims whitespace.
func parseCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
