package tui

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// Row is one line of the result list.
type Row struct {
	Label    string
	Detail   string
	Size     int64
	GzipSize int64
}

// Summary is the header of the result screen.
type Summary struct {
	Title    string
	Size     int64
	GzipSize int64
	Lines    []string
	Cached   bool
	DaemonUp bool
	Duration time.Duration
}

// ResultModel is the scrollable list shown after an analysis.
type ResultModel struct {
	summary Summary
	rows    []Row
	heading string
	empty   string
	cursor  int
	offset  int
	width   int
	height  int
}

// NewStatsResult builds the result screen for a package analysis. Rows
// are the dependency shares when known, otherwise the bundled modules.
func NewStatsResult(s *types.PackageStats, meta Summary) ResultModel {
	meta.Title = types.FormatSpec(s.Name, s.Version)
	meta.Size = s.Size
	meta.GzipSize = s.GzipSize

	meta.Lines = append(meta.Lines, fmt.Sprintf("Dependencies: %d", s.DependencyCount))
	if s.UnminifiedSize > 0 {
		meta.Lines = append(meta.Lines, "Unminified: "+types.FormatSize(s.UnminifiedSize))
	}
	if s.ParseTime != nil {
		meta.Lines = append(meta.Lines, "Parse time: "+s.ParseTime.Round(time.Millisecond).String())
	}
	if len(s.PeerDependencies) > 0 {
		meta.Lines = append(meta.Lines, "Peers: "+strings.Join(s.PeerDependencies, ", "))
	}
	if s.IsApproximate() {
		meta.Lines = append(meta.Lines, warningTextStyle.Render("Sizes are approximate"))
	}

	m := ResultModel{summary: meta, width: 80, height: 24}
	switch {
	case len(s.DependencySizes) > 0:
		m.heading = "Dependency"
		for _, d := range s.DependencySizes {
			m.rows = append(m.rows, Row{Label: d.Name, Size: d.ApproximateSize})
		}
	default:
		m.heading = "Module"
		for _, mod := range s.Modules {
			m.rows = append(m.rows, Row{Label: mod.Path, Size: mod.BytesInOutput, Detail: fmt.Sprintf("depth %d", mod.Depth)})
		}
	}
	m.empty = "No module breakdown for this package."
	m.sortRows()
	return m
}

// NewExportsResult builds the result screen for an export sizes run.
// total is the export count before filtering.
func NewExportsResult(e *types.PackageExportSizes, total int, meta Summary) ResultModel {
	meta.Title = types.FormatSpec(e.Name, e.Version) + " exports"
	for _, a := range e.Assets {
		meta.Size += a.Size
		meta.GzipSize += a.GzipSize
	}
	meta.Lines = append(meta.Lines, fmt.Sprintf("Exports: %d of %d", len(e.Assets), total))

	m := ResultModel{summary: meta, heading: "Export", width: 80, height: 24}
	for _, a := range e.Assets {
		m.rows = append(m.rows, Row{Label: a.ExportName, Detail: a.Path, Size: a.Size, GzipSize: a.GzipSize})
	}
	m.empty = "No exports matched the filter."
	return m
}

// sortRows orders rows largest first.
func (m *ResultModel) sortRows() {
	slices.SortStableFunc(m.rows, func(a, b Row) int {
		return cmp.Compare(b.Size, a.Size)
	})
}

// HandleKey handles key input for the result list.
func (m *ResultModel) HandleKey(key string) {
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = max(len(m.rows)-1, 0)
	case "pgup":
		m.cursor = max(m.cursor-m.visibleRows(), 0)
	case "pgdown":
		m.cursor = max(min(m.cursor+m.visibleRows(), len(m.rows)-1), 0)
	}
	m.ensureVisible()
}

// View renders the result screen.
func (m ResultModel) View() string {
	contentWidth := max(m.width-4, 60)

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	for _, line := range m.summary.Lines {
		b.WriteString("  " + mutedTextStyle.Render(line) + "\n")
	}
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")

	if len(m.rows) == 0 {
		b.WriteString("\n")
		b.WriteString(center(mutedTextStyle.Render(m.empty), contentWidth))
		b.WriteString("\n\n")
	} else {
		b.WriteString(m.renderColumns(contentWidth))
		b.WriteString("\n")
		b.WriteString(m.renderRows(contentWidth))
	}

	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n")
	b.WriteString(m.renderFooter(contentWidth))

	return outerBoxStyle.Width(max(m.width-2, 0)).Render(b.String())
}

func (m ResultModel) renderHeader() string {
	title := titleStyle.Render("  " + m.summary.Title)
	sizes := fmt.Sprintf("  %s min  •  %s gzip", types.FormatSize(m.summary.Size), types.FormatSize(m.summary.GzipSize))
	header := title + mutedTextStyle.Render(sizes)
	if m.summary.Cached {
		header += successTextStyle.Render("  ● cached")
	}
	return header
}

func (m ResultModel) renderColumns(width int) string {
	labelWidth := max(width-30, 10)
	return mutedTextStyle.Render(fmt.Sprintf("  %10s %10s   %-*s", "SIZE", "GZIP", labelWidth, strings.ToUpper(m.heading)))
}

func (m ResultModel) renderRows(width int) string {
	var b strings.Builder
	labelWidth := max(width-30, 10)
	visible := m.visibleRows()

	for i := m.offset; i < m.offset+visible && i < len(m.rows); i++ {
		b.WriteString(m.renderRow(m.rows[i], i == m.cursor, labelWidth))
		b.WriteString("\n")
	}
	for i := len(m.rows) - m.offset; i < visible; i++ {
		b.WriteString("\n")
	}
	return b.String()
}

func (m ResultModel) renderRow(r Row, isCursor bool, labelWidth int) string {
	gzip := "-"
	if r.GzipSize > 0 {
		gzip = types.FormatSize(r.GzipSize)
	}

	label := r.Label
	if r.Detail != "" && r.Detail != r.Label {
		label += "  " + r.Detail
	}

	cursor := " "
	if isCursor {
		cursor = cursorStyle.Render(">")
	}

	line := fmt.Sprintf("%s %s %s   %s",
		cursor,
		sizeStyle.Render(padLeft(types.FormatSize(r.Size), 10)),
		padLeft(gzip, 10),
		truncatePath(label, labelWidth))

	if isCursor {
		return selectedItemStyle.Width(labelWidth + 26).Render(line)
	}
	return normalItemStyle.Render(line)
}

func (m ResultModel) renderFooter(width int) string {
	source := "in-process"
	if m.summary.DaemonUp {
		source = "pkgsized"
	}
	left := mutedTextStyle.Render(fmt.Sprintf("  %s rows  •  %s  •  %s",
		humanize.Comma(int64(len(m.rows))), source, m.summary.Duration.Round(time.Millisecond)))
	right := renderKeyHints("↑↓", "Navigate", "l", "Logs", "q", "Quit")

	spacing := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", spacing) + right
}

// visibleRows returns the number of list rows that fit on screen.
func (m ResultModel) visibleRows() int {
	return max(m.height-10-len(m.summary.Lines), 5)
}

// ensureVisible adjusts offset to keep the cursor visible.
func (m *ResultModel) ensureVisible() {
	visible := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	} else if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
	m.offset = max(m.offset, 0)
}

// Rows returns the list rows.
func (m ResultModel) Rows() []Row {
	return m.rows
}

// Cursor returns the current cursor position.
func (m ResultModel) Cursor() int {
	return m.cursor
}

// Offset returns the scroll offset.
func (m ResultModel) Offset() int {
	return m.offset
}

// SetDimensions updates the width and height.
func (m *ResultModel) SetDimensions(width, height int) {
	m.width = width
	m.height = height
	m.ensureVisible()
}
