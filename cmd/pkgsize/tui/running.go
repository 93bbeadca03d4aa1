package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/analyzer"
)

// stageOrder is the order the analyzer reports stages in.
var stageOrder = []analyzer.Stage{
	analyzer.StageInitializing,
	analyzer.StageResolving,
	analyzer.StageDownloading,
	analyzer.StageInstalling,
	analyzer.StageBundling,
	analyzer.StageMinifying,
	analyzer.StageMeasuring,
	analyzer.StageDone,
}

// RunModel is the progress screen shown while an analysis runs.
type RunModel struct {
	spec      string
	title     string
	progress  analyzer.Progress
	seen      bool
	daemonUp  bool
	spinner   spinner.Model
	bar       progress.Model
	startTime time.Time
	width     int
	height    int
}

// NewRunModel creates the progress screen for spec.
func NewRunModel(spec, title string, daemonUp bool) RunModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return RunModel{
		spec:      spec,
		title:     title,
		daemonUp:  daemonUp,
		spinner:   s,
		bar:       progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		startTime: time.Now(),
		width:     80,
		height:    24,
	}
}

// Init starts the spinner.
func (m RunModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles spinner ticks.
func (m RunModel) Update(msg tea.Msg) (RunModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetDimensions(msg.Width, msg.Height)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// SetProgress records the latest progress report.
func (m *RunModel) SetProgress(p analyzer.Progress) {
	m.progress = p
	m.seen = true
}

// SetDimensions updates the width and height.
func (m *RunModel) SetDimensions(width, height int) {
	m.width = width
	m.height = height
}

// Percent estimates how far the analysis got. The export fan-out reports
// file counts; everything else is placed by stage.
func (m RunModel) Percent() float64 {
	if !m.seen {
		return 0
	}
	if m.progress.Total > 0 {
		return float64(m.progress.Done) / float64(m.progress.Total)
	}
	i := slices.Index(stageOrder, m.progress.Stage)
	if i < 0 {
		return 0
	}
	return float64(i) / float64(len(stageOrder)-1)
}

// StageText is the status line under the title.
func (m RunModel) StageText() string {
	switch {
	case m.progress.Total > 0:
		return fmt.Sprintf("%s %d/%d files", m.progress.Stage, m.progress.Done, m.progress.Total)
	case m.seen:
		return string(m.progress.Stage)
	case m.daemonUp:
		return "waiting for pkgsized"
	default:
		return "starting"
	}
}

// View renders the progress screen.
func (m RunModel) View() string {
	contentWidth := max(m.width-4, 40)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.renderHeader(contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("  %s %s: %s", m.spinner.View(), m.title, m.spec))
	b.WriteString("\n")
	b.WriteString(mutedTextStyle.Render("    " + m.StageText()))
	b.WriteString("\n\n")

	m.bar.Width = max(contentWidth-4, 10)
	b.WriteString("  ")
	b.WriteString(m.bar.ViewAs(m.Percent()))
	b.WriteString("\n\n")

	b.WriteString(m.renderStats(contentWidth))
	b.WriteString("\n")

	content := b.String()
	if lines := strings.Count(content, "\n") + 1; m.height-2 > lines {
		content += strings.Repeat("\n", m.height-2-lines)
	}
	return outerBoxStyle.Width(max(m.width-2, 0)).Render(content)
}

func (m RunModel) renderHeader(width int) string {
	title := titleStyle.Render("  pkgsize")
	hint := mutedTextStyle.Render("[Ctrl+C to stop]")
	spacing := max(width-lipgloss.Width(title)-lipgloss.Width(hint), 1)
	return title + strings.Repeat(" ", spacing) + hint
}

func (m RunModel) renderStats(totalWidth int) string {
	boxWidth := max((totalWidth-8)/3, 12)

	source := "in-process"
	if m.daemonUp {
		source = "pkgsized"
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		"  ",
		renderStatBox("Stage", string(orDash(m.progress.Stage)), boxWidth),
		" ",
		renderStatBox("Source", source, boxWidth),
		" ",
		renderStatBox("Time", formatElapsed(time.Since(m.startTime)), boxWidth),
	)
}

func orDash(s analyzer.Stage) analyzer.Stage {
	if s == "" {
		return "-"
	}
	return s
}

// renderStatBox renders a single stat box.
func renderStatBox(label, value string, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		center(statsLabelStyle.Render(label), width-4),
		center(statsValueStyle.Render(value), width-4))
	return statsBoxStyle.Width(width).Render(content)
}

// formatElapsed formats a duration as M:SS.
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", d/time.Minute, (d%time.Minute)/time.Second)
}
