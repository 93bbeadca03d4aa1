package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage pkgsize configuration settings.

Configuration is loaded from:
  1. the file given with --config
  2. $XDG_CONFIG_HOME/pkgsize/config.yaml (if set)
  3. ~/.config/pkgsize/config.yaml

Environment variables override config file settings using the PKGSIZE_ prefix,
and may also come from a .env file in the working directory:
  PKGSIZE_CDN=jsdelivr
  PKGSIZE_MINIFIER=ast-based
  PKGSIZE_CACHE_ENABLED=false`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after files, environment and flags are merged.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.
A running pkgsized picks up the saved file without a restart.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configEnvVars lists the environment variables config show reports.
var configEnvVars = []string{
	"PKGSIZE_CDN",
	"PKGSIZE_MINIFIER",
	"PKGSIZE_DEBUG",
	"PKGSIZE_CUSTOM_IMPORTS",
	"PKGSIZE_USE_WEB_CONTAINER",
	"PKGSIZE_INCLUDE_DEPENDENCY_SIZES",
	"PKGSIZE_CONCURRENCY",
	"PKGSIZE_RATE_LIMIT",
	"PKGSIZE_OUTPUT",
	"PKGSIZE_PARSE_TIME_LIMIT",
	"PKGSIZE_CACHE_ENABLED",
	"PKGSIZE_CACHE_PATH",
	"PKGSIZE_HISTORY_ENABLED",
	"PKGSIZE_HISTORY_RETENTION",
	"PKGSIZE_LOGGING_LEVEL",
	"PKGSIZE_DAEMON_AUTO_START",
	"PKGSIZE_DAEMON_METRICS_ADDR",
}

// activeConfigFile returns the config file in use, or "" when only defaults apply.
func activeConfigFile() (string, error) {
	path := cfgFile
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return "", err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return "", nil
	}
	return path, nil
}

// runConfigShow displays the current configuration.
func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	file, err := activeConfigFile()
	if err != nil {
		return err
	}
	if file != "" {
		fmt.Printf("Config file: %s\n\n", file)
	} else {
		fmt.Println("Config file: (using defaults, no file found)")
		fmt.Println()
	}

	imports := "(entry point)"
	if len(cfg.CustomImports) > 0 {
		imports = strings.Join(cfg.CustomImports, ", ")
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("cdn:                       %s\n", cfg.CDN)
	fmt.Printf("minifier:                  %s\n", cfg.Minifier)
	fmt.Printf("debug:                     %t\n", cfg.Debug)
	fmt.Printf("custom_imports:            %s\n", imports)
	fmt.Printf("use_web_container:         %t\n", cfg.UseWebContainer)
	fmt.Printf("include_dependency_sizes:  %t\n", cfg.IncludeDependencySizes)
	fmt.Printf("concurrency:               %d\n", cfg.Concurrency)
	fmt.Printf("rate_limit:                %g req/s\n", cfg.RateLimit)
	fmt.Printf("parse_time_limit:          %s\n", cfg.ParseTimeLimit)
	fmt.Printf("output:                    %s\n", cfg.Output)
	fmt.Printf("cache.enabled:             %t\n", cfg.Cache.Enabled)
	fmt.Printf("cache.path:                %s\n", cfg.CachePath())
	fmt.Printf("cache.memory_entries:      %d\n", cfg.Cache.MemoryEntries)
	fmt.Printf("history.enabled:           %t\n", cfg.History.Enabled)
	fmt.Printf("history.path:              %s\n", cfg.HistoryPath())
	fmt.Printf("history.retention:         %d entries\n", cfg.History.Retention)
	fmt.Printf("logging.level:             %s\n", cfg.Logging.Level)
	fmt.Printf("logging.path:              %s\n", cfg.Logging.Path)
	fmt.Printf("daemon.auto_start:         %t\n", cfg.Daemon.AutoStart)
	fmt.Printf("daemon.socket_path:        %s\n", cfg.SocketPath())
	fmt.Printf("daemon.metrics_addr:       %s\n", orNone(cfg.Daemon.MetricsAddr))

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	anyOverrides := false
	for _, name := range configEnvVars {
		if val := os.Getenv(name); val != "" {
			fmt.Printf("%s=%s\n", name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Println("(none)")
	}

	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(_ *cobra.Command, _ []string) error {
	configPath := cfgFile
	if configPath == "" {
		var err error
		if configPath, err = config.WriteDefault(); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}

	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'pkgsize config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(_ *cobra.Command, _ []string) error {
	configPath := cfgFile
	if configPath == "" {
		var err error
		if configPath, err = config.ConfigPath(); err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	fmt.Println(configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}

	return nil
}
