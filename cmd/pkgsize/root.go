package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/config"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "pkgsize <package>[@version]",
		Short: "Measure the bundle size of npm packages",
		Long: `pkgsize downloads an npm package from a registry CDN, bundles it with
esbuild, minifies the result and reports its minified and gzipped size.

Results for exact versions are cached. When pkgsized is running, requests
are served by the daemon, which keeps the bundler and cache warm.

Examples:
  pkgsize react                     # Latest version
  pkgsize react@18.2.0              # Exact version
  pkgsize @babel/core@^7 -o json    # Range, JSON output
  pkgsize lodash-es --import debounce
  pkgsize exports lodash-es -n 10   # Ten largest exports
  pkgsize history                   # Recent analyses`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runAnalyze,
	}
)

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/pkgsize/config.yaml)")
	rootCmd.PersistentFlags().String("cdn", "", "registry CDN: unpkg, jsdelivr, skypack, esm")
	rootCmd.PersistentFlags().String("minifier", "", "minification strategy: fast or ast-based")
	rootCmd.PersistentFlags().Bool("debug", false, "measure parse time and log verbose warnings")
	rootCmd.PersistentFlags().StringSlice("import", nil, "measure an entry re-exporting these subpaths (repeatable)")
	rootCmd.PersistentFlags().Bool("sandbox", false, "install into a sandbox instead of fetching files from the CDN")
	rootCmd.PersistentFlags().Bool("dependency-sizes", false, "report the size of each dependency")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format: pretty, plain, json, jsonl, yaml, csv, tsv, markdown, template")
	rootCmd.PersistentFlags().String("template", "", "Go template used with -o template")
	rootCmd.PersistentFlags().Bool("no-cache", false, "ignore cached results")
	rootCmd.PersistentFlags().Bool("no-daemon", false, "analyze in-process even if pkgsized is running")
	rootCmd.PersistentFlags().BoolP("interactive", "i", false, "show progress and results in the TUI")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	// Bind flags to viper
	_ = viper.BindPFlag("cdn", rootCmd.PersistentFlags().Lookup("cdn"))
	_ = viper.BindPFlag("minifier", rootCmd.PersistentFlags().Lookup("minifier"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("custom_imports", rootCmd.PersistentFlags().Lookup("import"))
	_ = viper.BindPFlag("use_web_container", rootCmd.PersistentFlags().Lookup("sandbox"))
	_ = viper.BindPFlag("include_dependency_sizes", rootCmd.PersistentFlags().Lookup("dependency-sizes"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("template", rootCmd.PersistentFlags().Lookup("template"))
	_ = viper.BindPFlag("no_cache", rootCmd.PersistentFlags().Lookup("no-cache"))
	_ = viper.BindPFlag("no_daemon", rootCmd.PersistentFlags().Lookup("no-daemon"))
	_ = viper.BindPFlag("interactive", rootCmd.PersistentFlags().Lookup("interactive"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	return cfg, nil
}

// initLogging sets up file logging. Verbose mode mirrors debug entries
// to stderr; the TUI keeps them in memory for its log pane instead.
func initLogging(cfg *config.Config, tuiMode bool) error {
	opts, err := cfg.LoggingOptions()
	if err != nil {
		return err
	}
	if getVerbose() {
		opts.Level = "debug"
		opts.ConsoleLevel = "debug"
	}
	opts.TUIMode = tuiMode
	return logging.Init(opts)
}

// Execute runs the root command.
func Execute() error {
	defer func() { _ = logging.Close() }()
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...any) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...any) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: %s\n", strings.TrimPrefix(msg, "Error: "))
}
