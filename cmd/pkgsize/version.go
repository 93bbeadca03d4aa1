package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	latest "github.com/tcnksm/go-latest"
)

// Build-time variables set by goreleaser or go build -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version, commit hash, and build date of pkgsize.`,
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().Bool("check", false, "check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}

// runVersion prints version information.
func runVersion(cmd *cobra.Command, _ []string) error {
	fmt.Printf("pkgsize %s\n", version)
	fmt.Printf("  commit:  %s\n", commit)
	fmt.Printf("  built:   %s\n", date)
	fmt.Printf("  go:      %s\n", runtime.Version())
	fmt.Printf("  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if check, _ := cmd.Flags().GetBool("check"); check {
		return checkUpdate(version)
	}
	return nil
}

// checkUpdate compares current with the newest release tag.
func checkUpdate(current string) error {
	if current == "dev" {
		printInfo("\nDevelopment build, skipping update check")
		return nil
	}

	res, err := latest.Check(&latest.GithubTag{
		Owner:      "jamesainslie",
		Repository: "pkgsize",
	}, strings.TrimPrefix(current, "v"))
	if err != nil {
		return fmt.Errorf("update check failed: %w", err)
	}

	if res.Outdated {
		printInfo("\nA new version is available: %s (you have %s)", res.Current, current)
		printInfo("Download it from https://github.com/jamesainslie/pkgsize/releases")
	} else {
		printInfo("\nYou are using the latest version")
	}
	return nil
}
