package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/pkgsize/pkg/daemon"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/analyzer"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/runner"
)

var logger = logging.Get("tui")

// AppState represents the current state of the application.
type AppState int

const (
	StateRunning AppState = iota
	StateResults
	StateError
)

// Kind selects the analysis the TUI runs.
type Kind int

const (
	KindStats Kind = iota
	KindExports
)

// Backend runs analyses. The CLI passes its daemon-or-local backend.
type Backend interface {
	Analyze(ctx context.Context, req runner.Request, onProgress func(analyzer.Progress)) (*runner.StatsResult, error)
	ExportSizes(ctx context.Context, req runner.Request, opts daemon.FilterOptions, onProgress func(analyzer.Progress)) (*daemon.ExportSizesResponse, error)
}

// Options configures the TUI application.
type Options struct {
	Backend  Backend
	Request  runner.Request
	Kind     Kind
	Filter   daemon.FilterOptions
	DaemonUp bool
}

// ProgressMsg is sent when the analysis reaches a new stage.
type ProgressMsg analyzer.Progress

// DoneMsg is sent when the analysis finished.
type DoneMsg struct {
	Stats   *runner.StatsResult
	Exports *daemon.ExportSizesResponse
	Err     error
}

// Model is the main Bubble Tea model for the pkgsize TUI.
type Model struct {
	state    AppState
	options  Options
	running  RunModel
	results  ResultModel
	err      error
	showLogs bool

	ctx          context.Context
	cancel       context.CancelFunc
	progressChan chan analyzer.Progress

	width  int
	height int
}

// NewModel creates a new TUI model with the given options.
func NewModel(opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())

	title := "Analyzing"
	if opts.Kind == KindExports {
		title = "Measuring exports"
	}

	return Model{
		state:        StateRunning,
		options:      opts,
		running:      NewRunModel(opts.Request.Spec(), title, opts.DaemonUp),
		ctx:          ctx,
		cancel:       cancel,
		progressChan: make(chan analyzer.Progress, 100),
		width:        80,
		height:       24,
	}
}

// Init starts the analysis.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.running.Init(),
		m.start(),
		m.listenForProgress(),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.running.SetDimensions(msg.Width, msg.Height)
		m.results.SetDimensions(msg.Width, m.resultHeight())
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ProgressMsg:
		m.running.SetProgress(analyzer.Progress(msg))
		return m, m.listenForProgress()

	case DoneMsg:
		return m.finish(msg), nil

	case spinner.TickMsg:
		if m.state != StateRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.running, cmd = m.running.Update(msg)
		return m, cmd
	}

	return m, nil
}

// finish switches to the result or error screen.
func (m Model) finish(msg DoneMsg) Model {
	if msg.Err != nil {
		logger.Warn("analysis failed", "package", m.options.Request.Spec(), "error", msg.Err)
		m.state = StateError
		m.err = msg.Err
		return m
	}

	meta := Summary{DaemonUp: m.options.DaemonUp}
	switch {
	case msg.Stats != nil:
		meta.Cached = msg.Stats.Cached
		meta.Duration = msg.Stats.Duration
		m.results = NewStatsResult(msg.Stats.Stats, meta)
	case msg.Exports != nil:
		meta.Cached = msg.Exports.Cached
		meta.Duration = msg.Exports.Duration
		m.results = NewExportsResult(msg.Exports.Exports, msg.Exports.Total, meta)
	}
	m.results.SetDimensions(m.width, m.resultHeight())
	m.state = StateResults
	return m
}

// handleKey handles keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "ctrl+c":
		m.cancel()
		return m, tea.Quit
	case "l":
		m.showLogs = !m.showLogs
		m.results.SetDimensions(m.width, m.resultHeight())
		return m, nil
	}

	if m.state == StateRunning {
		return m, nil
	}

	switch key {
	case "q", "esc":
		m.cancel()
		return m, tea.Quit
	}
	if m.state == StateResults {
		m.results.HandleKey(key)
	}
	return m, nil
}

// resultHeight is the height left for the result list.
func (m Model) resultHeight() int {
	if m.showLogs {
		return m.height - logPaneRows - 1
	}
	return m.height
}

// View renders the current screen.
func (m Model) View() string {
	var view string
	switch m.state {
	case StateResults:
		view = m.results.View()
	case StateError:
		view = m.renderError()
	default:
		view = m.running.View()
	}

	if m.showLogs {
		view += "\n" + renderLogPane(logging.Recent(), max(m.width-2, 20))
	}
	return view
}

func (m Model) renderError() string {
	width := max(m.width-4, 40)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  pkgsize"))
	b.WriteString("\n")
	b.WriteString(renderDivider(width))
	b.WriteString("\n\n")
	b.WriteString(errorTextStyle.Render("  " + m.options.Request.Spec() + ": " + m.err.Error()))
	b.WriteString("\n\n")
	b.WriteString(renderKeyHints("l", "Logs", "q", "Quit"))
	b.WriteString("\n")
	return outerBoxStyle.Width(max(m.width-2, 0)).Render(b.String())
}

// start runs the analysis in the background.
func (m Model) start() tea.Cmd {
	progressChan := m.progressChan
	opts := m.options
	ctx := m.ctx

	return func() tea.Msg {
		defer close(progressChan)

		onProgress := func(p analyzer.Progress) {
			select {
			case progressChan <- p:
			default:
				// Channel full, skip this update
			}
		}

		if opts.Kind == KindExports {
			res, err := opts.Backend.ExportSizes(ctx, opts.Request, opts.Filter, onProgress)
			return DoneMsg{Exports: res, Err: err}
		}
		res, err := opts.Backend.Analyze(ctx, opts.Request, onProgress)
		return DoneMsg{Stats: res, Err: err}
	}
}

// listenForProgress waits for the next progress report.
func (m Model) listenForProgress() tea.Cmd {
	progressChan := m.progressChan
	return func() tea.Msg {
		p, ok := <-progressChan
		if !ok {
			return nil
		}
		return ProgressMsg(p)
	}
}

// State returns the current state.
func (m Model) State() AppState {
	return m.state
}

// Err returns the analysis error, if any.
func (m Model) Err() error {
	return m.err
}

// Results returns the result list.
func (m Model) Results() ResultModel {
	return m.results
}

// Run starts the TUI application. The analysis error, if any, is returned
// after the user quits.
func Run(opts Options) error {
	p := tea.NewProgram(NewModel(opts), tea.WithAltScreen())

	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.err != nil {
		return m.err
	}
	return nil
}
