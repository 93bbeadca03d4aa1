package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/pkgsize/pkg/client"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the pkgsized daemon",
	Long: `Manage the pkgsized daemon.

The daemon keeps the result cache open and serves analyses over a unix
socket, so repeat runs skip process start-up and cache loading. Set
daemon.auto_start in the config to start it on first use.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pkgsized daemon",
	Long:  `Start the pkgsized daemon in the background.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the pkgsized daemon",
	Long:  `Stop the pkgsized daemon gracefully.`,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the pkgsized daemon",
	Long:  `Stop and start the pkgsized daemon.`,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the current status of the pkgsized daemon.`,
	RunE:  runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

// daemonPaths returns the daemon paths of the loaded config.
func daemonPaths() (client.DaemonPaths, error) {
	cfg, err := loadConfig()
	if err != nil {
		return client.DaemonPaths{}, err
	}
	paths := client.PathsFromConfig(cfg)
	paths.Config = cfgFile
	return paths, nil
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}
	if client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon is already running")
		return nil
	}

	printVerbose("starting daemon (socket %s)...", paths.Socket)
	if err := client.StartDaemon(paths); err != nil {
		printVerbose("start failed: %v", err)
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}

	printVerbose("checking PID file: %s", paths.PID)
	if !client.IsDaemonRunning(paths.PID) {
		return errors.New("daemon is not running")
	}

	if err := client.StopDaemon(paths); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(_ *cobra.Command, _ []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}
	if err := client.RestartDaemon(paths); err != nil {
		return fmt.Errorf("failed to restart daemon: %w", err)
	}
	printInfo("Daemon restarted")
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}

	if !client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon status: not running")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	daemonClient, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		printInfo("Daemon status: running (but not responding)")
		return nil
	}
	defer daemonClient.Close()

	status, err := daemonClient.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get daemon status: %w", err)
	}

	printInfo("Daemon status: running (pid %d)", status.PID)
	if status.Version != "" {
		printInfo("  Version: %s", status.Version)
	}
	printInfo("  Uptime: %s", formatDuration(time.Duration(status.UptimeSeconds)*time.Second))
	printInfo("  Memory: %s", types.FormatSize(int64(status.MemoryBytes)))
	printInfo("  CDN: %s", status.CDN)
	printInfo("  Requests: %s (%d failed, %d in flight)",
		humanize.Comma(status.Requests), status.Failures, status.InFlight)
	if status.Cache != nil {
		printInfo("  Cache: %s entries, %s on disk",
			humanize.Comma(int64(status.Cache.Entries)), types.FormatSize(status.Cache.DiskBytes))
	}
	if status.ConfigPath != "" {
		printInfo("  Config: %s", status.ConfigPath)
	}
	if status.HistoryDir != "" {
		printInfo("  History: %s", status.HistoryDir)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
