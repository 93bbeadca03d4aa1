package output

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// maxModules is how many of the largest bundle modules the pretty view lists.
const maxModules = 10

// PrettyFormatter formats output with colors and styling using lipgloss.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	switch {
	case r.Stats != nil:
		f.formatStats(w, r)
	case r.Exports != nil:
		f.formatExports(w, r)
	default:
		f.formatHistory(w, r)
	}

	if len(r.Meta.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Meta.Warnings))
	}
	return nil
}

func (f *PrettyFormatter) formatStats(w *bytes.Buffer, r *Report) {
	s := r.Stats

	lines := []string{
		TitleStyle.Render(types.FormatSpec(s.Name, s.Version)) + "  " + f.formatSource(s, r.Meta),
		strings.Join([]string{
			field("Minified:", SizeStyle.Render(types.FormatSize(s.Size))),
			field("Gzipped:", SizeStyle.Render(types.FormatSize(s.GzipSize))),
		}, "  "),
	}

	var info []string
	if s.UnminifiedSize > 0 {
		info = append(info, field("Unminified:", ValueStyle.Render(types.FormatSize(s.UnminifiedSize))))
	}
	info = append(info, field("Dependencies:", ValueStyle.Render(fmt.Sprint(s.DependencyCount))))
	if s.ParseTime != nil {
		info = append(info, field("Parse:", ValueStyle.Render(formatDuration(*s.ParseTime))))
	}
	lines = append(lines, strings.Join(info, "  "))

	if len(s.PeerDependencies) > 0 {
		lines = append(lines, field("Peers:", ValueStyle.Render(strings.Join(s.PeerDependencies, ", "))))
	}
	if flags := formatFlags(s.Flags); flags != "" {
		lines = append(lines, field("Format:", MutedStyle.Render(flags)))
	}
	if s.IsApproximate() {
		lines = append(lines, WarningStyle.Bold(true).Render("Sizes are estimates from an installed package, not a bundle"))
	}

	w.WriteString(HeaderBox.Render(strings.Join(lines, "\n")))
	w.WriteString("\n")

	if len(s.Modules) > 0 {
		modules := slices.Clone(s.Modules)
		slices.SortFunc(modules, func(a, b types.ModuleSize) int {
			return cmp.Compare(b.BytesInOutput, a.BytesInOutput)
		})
		if len(modules) > maxModules {
			modules = modules[:maxModules]
		}
		rows := make([][2]string, 0, len(modules))
		for _, m := range modules {
			rows = append(rows, [2]string{types.FormatSize(m.BytesInOutput), m.Path})
		}
		w.WriteString(TitleStyle.Render("Largest modules"))
		w.WriteString("\n")
		w.WriteString(sizeTable("SIZE", "MODULE", rows))
	}

	if len(s.DependencySizes) > 0 {
		rows := make([][2]string, 0, len(s.DependencySizes))
		for _, d := range s.DependencySizes {
			rows = append(rows, [2]string{types.FormatSize(d.ApproximateSize), d.Name})
		}
		w.WriteString("\n")
		w.WriteString(TitleStyle.Render("Dependency composition"))
		w.WriteString("\n")
		w.WriteString(sizeTable("SIZE", "PACKAGE", rows))
	}

	w.WriteString(FooterBox.Render(f.formatFooter(r, MutedStyle.Render("Run `pkgsize exports` for per-file sizes"))))
	w.WriteString("\n")
}

func (f *PrettyFormatter) formatExports(w *bytes.Buffer, r *Report) {
	e := r.Exports
	total, totalGzip := r.TotalExportSize()

	header := TitleStyle.Render(types.FormatSpec(e.Name, e.Version)) + "  " +
		field("Exports:", ValueStyle.Render(fmt.Sprint(len(e.Assets))))
	w.WriteString(HeaderBox.Render(header))
	w.WriteString("\n")

	if len(e.Assets) == 0 {
		w.WriteString(MutedStyle.Render("  No exports matched"))
		w.WriteString("\n")
	} else {
		rows := make([][2]string, 0, len(e.Assets))
		for _, a := range e.Assets {
			rows = append(rows, [2]string{
				types.FormatSize(a.Size) + " / " + types.FormatSize(a.GzipSize),
				a.ExportName + "  " + MutedStyle.Render(a.Path),
			})
		}
		w.WriteString(sizeTable("SIZE / GZIP", "EXPORT", rows))
	}

	totals := field("Total:", SizeStyle.Render(types.FormatSize(total))) + "  " +
		field("Gzipped:", SizeStyle.Render(types.FormatSize(totalGzip)))
	w.WriteString(FooterBox.Render(f.formatFooter(r, totals)))
	w.WriteString("\n")
}

func (f *PrettyFormatter) formatHistory(w *bytes.Buffer, r *Report) {
	if len(r.History) == 0 {
		w.WriteString(MutedStyle.Render("  No analyses recorded yet"))
		w.WriteString("\n")
		return
	}

	now := time.Now()
	rows := make([][2]string, 0, len(r.History))
	for _, e := range r.History {
		rows = append(rows, [2]string{
			types.FormatSize(e.Size),
			fmt.Sprintf("%s  %s  %s",
				types.FormatSpec(e.Name, e.Version),
				MutedStyle.Render(string(e.Kind)),
				MutedStyle.Render(humanize.RelTime(e.Timestamp, now, "ago", "from now"))),
		})
	}
	w.WriteString(sizeTable("SIZE", "ANALYSIS", rows))
}

// formatSource describes where the numbers came from.
func (f *PrettyFormatter) formatSource(s *types.PackageStats, meta Meta) string {
	var parts []string
	if s.IsApproximate() {
		parts = append(parts, WarningStyle.Render(string(s.Measurement)))
	} else {
		parts = append(parts, SuccessStyle.Render(string(s.Measurement)))
	}
	if s.Strategy != "" {
		parts = append(parts, MutedStyle.Render("via "+string(s.Strategy)))
	}
	if meta.Cached {
		parts = append(parts, MutedStyle.Render("cached"))
	}
	return strings.Join(parts, " ")
}

func (f *PrettyFormatter) formatFooter(r *Report, lead string) string {
	parts := []string{lead}
	if r.Meta.Duration > 0 {
		parts = append(parts, field("Took:", ValueStyle.Render(formatDuration(r.Meta.Duration))))
	}
	if r.Meta.DaemonUp {
		parts = append(parts, SuccessStyle.Render("daemon: up"))
	} else {
		parts = append(parts, MutedStyle.Render("daemon: off"))
	}
	return strings.Join(parts, "  ")
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

func field(label, value string) string {
	return LabelStyle.Render(label) + " " + value
}

func formatFlags(fl types.Flags) string {
	var parts []string
	if fl.HasJSModule || fl.HasJSNext || fl.IsModuleType {
		parts = append(parts, "esm")
	}
	if !fl.HasSideEffects {
		parts = append(parts, "side-effect free")
	}
	return strings.Join(parts, ", ")
}

// sizeTable renders right-aligned sizes next to labels.
func sizeTable(sizeHeader, labelHeader string, rows [][2]string) string {
	width := len(sizeHeader)
	for _, row := range rows {
		width = max(width, len(row[0]))
	}

	var sb strings.Builder
	sb.WriteString("  ")
	sb.WriteString(TableHeaderStyle.Render(padLeft(sizeHeader, width)))
	sb.WriteString("  ")
	sb.WriteString(TableHeaderStyle.Render(labelHeader))
	sb.WriteString("\n")
	for _, row := range rows {
		sb.WriteString("  ")
		sb.WriteString(SizeStyle.Render(padLeft(row[0], width)))
		sb.WriteString("  ")
		sb.WriteString(PathStyle.Render(row[1]))
		sb.WriteString("\n")
	}
	return sb.String()
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	return fmt.Sprintf("%dm %ds", minutes, int(sec)%60)
}

func init() {
	Register("pretty", func() Formatter { return &PrettyFormatter{} })
}

var _ Formatter = (*PrettyFormatter)(nil)
