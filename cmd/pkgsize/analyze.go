package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/pkgsize/cmd/pkgsize/tui"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/analyzer"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/config"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/output"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/runner"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

var exportsCmd = &cobra.Command{
	Use:   "exports <package>[@version]",
	Short: "Measure the size of each export of a package",
	Long: `Bundles every named export of an ES module package on its own and
reports the minified and gzipped size of each.

Examples:
  pkgsize exports lodash-es                 # All exports, largest first
  pkgsize exports lodash-es -n 10           # Ten largest
  pkgsize exports date-fns -I 'locale/**'   # Only locale exports
  pkgsize exports rxjs --sort name          # Alphabetical`,
	Args: cobra.ExactArgs(1),
	RunE: runExports,
}

func init() {
	addFilterFlags(exportsCmd)
	rootCmd.AddCommand(exportsCmd)
}

// prepare loads the config, sets up logging and parses the package spec.
func prepare(spec string, tuiMode bool) (*config.Config, runner.Request, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, runner.Request{}, err
	}
	if !tuiMode {
		if _, err := formatterFor(cfg.Output); err != nil {
			return nil, runner.Request{}, err
		}
	}
	if err := initLogging(cfg, tuiMode); err != nil {
		return nil, runner.Request{}, fmt.Errorf("failed to initialize logging: %w", err)
	}

	req, err := runner.NewRequest(cfg, spec)
	if err != nil {
		return nil, runner.Request{}, err
	}
	req.NoCache = viper.GetBool("no_cache")
	return cfg, req, nil
}

// interactive reports whether the TUI should run. An explicit output
// format always wins.
func interactive() bool {
	if !viper.GetBool("interactive") {
		return false
	}
	out := viper.GetString("output")
	return out == "" || out == "pretty"
}

// signalContext is cancelled on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// progressPrinter reports analysis stages in verbose mode.
func progressPrinter(p analyzer.Progress) {
	printVerbose("%s: %s", p.Package, p.Stage)
}

// runAnalyze is the root command handler.
func runAnalyze(_ *cobra.Command, args []string) error {
	useTUI := interactive()
	cfg, req, err := prepare(args[0], useTUI)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	if useTUI {
		return tui.Run(tui.Options{Backend: b, Request: req, Kind: tui.KindStats, DaemonUp: b.UsesDaemon()})
	}

	if !getQuiet() && !b.UsesDaemon() {
		fmt.Fprintf(os.Stderr, "Analyzing %s...\n", req.Spec())
	}

	res, err := b.Analyze(ctx, req, progressPrinter)
	if err != nil {
		return describeError(ctx, err)
	}

	report := &output.Report{
		Stats: res.Stats,
		Meta: output.Meta{
			Cached:   res.Cached,
			DaemonUp: b.UsesDaemon(),
			Duration: res.Duration,
		},
	}
	if res.Stats.IsApproximate() {
		report.Meta.Warnings = append(report.Meta.Warnings,
			fmt.Sprintf("size is approximate: %s", res.Stats.Measurement))
	}
	return writeReport(report, cfg.Output)
}

// runExports is the exports command handler.
func runExports(_ *cobra.Command, args []string) error {
	opts, err := buildFilterOptions()
	if err != nil {
		return err
	}

	useTUI := interactive()
	cfg, req, err := prepare(args[0], useTUI)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	if useTUI {
		return tui.Run(tui.Options{Backend: b, Request: req, Kind: tui.KindExports, Filter: opts, DaemonUp: b.UsesDaemon()})
	}

	if !getQuiet() && !b.UsesDaemon() {
		fmt.Fprintf(os.Stderr, "Measuring exports of %s...\n", req.Spec())
	}

	res, err := b.ExportSizes(ctx, req, opts, progressPrinter)
	if err != nil {
		return describeError(ctx, err)
	}

	report := &output.Report{
		Exports: res.Exports,
		Meta: output.Meta{
			Cached:   res.Cached,
			DaemonUp: b.UsesDaemon(),
			Duration: res.Duration,
		},
	}
	if shown := len(res.Exports.Assets); shown < res.Total {
		report.Meta.Warnings = append(report.Meta.Warnings,
			fmt.Sprintf("showing %d of %d exports", shown, res.Total))
	}
	return writeReport(report, cfg.Output)
}

// describeError adds a hint to the errors a user can act on.
func describeError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return errors.New("analysis cancelled")
	case errors.Is(err, types.ErrPackageNotFound):
		return fmt.Errorf("%w (check the name and version)", err)
	case errors.Is(err, types.ErrRegistryUnreachable):
		return fmt.Errorf("%w (try another registry with --cdn)", err)
	case errors.Is(err, types.ErrSandboxUnsupported):
		return fmt.Errorf("%w (run without --sandbox)", err)
	}
	return err
}

// formatterFor returns the named output formatter. The template format
// takes its template from --template when given.
func formatterFor(name string) (output.Formatter, error) {
	if name == "" {
		name = config.DefaultOutput
	}
	if name == "template" {
		if tmpl := viper.GetString("template"); tmpl != "" {
			return output.NewTemplateFormatter(tmpl), nil
		}
	}
	formatter, err := output.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", name, output.Available())
	}
	return formatter, nil
}

// writeReport formats r and prints it to stdout.
func writeReport(r *output.Report, format string) error {
	formatter, err := formatterFor(format)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Print(buf.String())
	return nil
}
