package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
)

// logPaneRows is the height of the log pane.
const logPaneRows = 8

// logLevelStyle returns the style for a log level.
func logLevelStyle(level logging.Level) lipgloss.Style {
	switch level {
	case logging.LevelDebug:
		return logDebugStyle
	case logging.LevelWarn:
		return logWarnStyle
	case logging.LevelError:
		return logErrorStyle
	default:
		return logInfoStyle
	}
}

// logLevelChar returns a single character for the log level.
func logLevelChar(level logging.Level) string {
	switch level {
	case logging.LevelDebug:
		return "D"
	case logging.LevelWarn:
		return "W"
	case logging.LevelError:
		return "E"
	default:
		return "I"
	}
}

// formatLogEntry renders one entry as a single line of at most width cells.
func formatLogEntry(e logging.Entry, width int) string {
	line := fmt.Sprintf("%s %s %-8s %s", e.Time.Format("15:04:05"), logLevelChar(e.Level), e.Component, e.Message)
	if len(line) > width && width > 3 {
		line = line[:width-3] + "..."
	}
	return logLevelStyle(e.Level).Render(line)
}

// renderLogPane renders the newest entries of ring below a divider. A nil
// ring renders a placeholder.
func renderLogPane(ring *logging.Ring, width int) string {
	var b strings.Builder
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	var entries []logging.Entry
	if ring != nil {
		entries = ring.Last(logPaneRows)
	}
	if len(entries) == 0 {
		b.WriteString(mutedTextStyle.Render("  no log entries"))
		b.WriteString("\n")
		return b.String()
	}
	for _, e := range entries {
		b.WriteString("  ")
		b.WriteString(formatLogEntry(e, width-2))
		b.WriteString("\n")
	}
	return b.String()
}
