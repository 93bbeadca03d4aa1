// Package logging is the shared logging setup of the pkgsize CLI, TUI and
// daemon. Every package asks for a component logger once:
//
//	var logger = logging.Get("registry")
//
// Loggers handed out before Init write nowhere. Init points every logger,
// including those already handed out, at a rotating log file and optionally
// at stderr.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is a logging severity.
type Level int

// Levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned for an unrecognized level name.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses debug, info, warn (or warning) and error.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	for level, name := range levelNames {
		if name == s {
			return level, nil
		}
	}
	return LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
}

// Config configures Init.
type Config struct {
	// Level is the default file log level.
	Level string

	// Path of the log file. Empty uses DefaultLogPath.
	Path string

	Rotation RotationConfig

	// Components overrides Level per component name.
	Components map[string]string

	// ConsoleLevel mirrors entries at or above this level to stderr.
	// Empty disables console output.
	ConsoleLevel string

	// TUIMode suppresses console output and keeps recent entries in memory
	// for the log view.
	TUIMode bool
}

// DefaultConfig returns the configuration used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}

// DefaultLogPath is $XDG_STATE_HOME/pkgsize/pkgsize.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "pkgsize", "pkgsize.log")
}

// Entry is a log record delivered to subscribers.
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	Message   string
}

// Logger is a component logger.
type Logger struct {
	component string

	// parent is the component logger a With child reads its outputs from.
	parent *Logger
	fields []any

	mu      sync.RWMutex
	file    *log.Logger
	console *log.Logger
}

func (l *Logger) Debug(msg string, kv ...any) { l.emit(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.emit(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.emit(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.emit(LevelError, msg, kv) }

// With returns a logger that adds kv to every entry. The child follows
// later re-initialization of its component.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{
		component: l.component,
		parent:    l.root(),
		fields:    append(append([]any(nil), l.fields...), kv...),
	}
}

func (l *Logger) root() *Logger {
	if l.parent != nil {
		return l.parent
	}
	return l
}

func (l *Logger) outputs() (file, console *log.Logger) {
	r := l.root()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.file, r.console
}

func (l *Logger) emit(level Level, msg string, kv []any) {
	file, console := l.outputs()
	args := kv
	if len(l.fields) > 0 {
		args = append(append([]any(nil), l.fields...), kv...)
	}

	write(file, level, msg, args)
	if console != nil {
		write(console, level, msg, args)
	}

	if file.GetLevel() <= level.charm() {
		state.publish(Entry{Time: time.Now(), Level: level, Component: l.component, Message: msg})
	}
}

func write(to *log.Logger, level Level, msg string, args []any) {
	switch level {
	case LevelDebug:
		to.Debug(msg, args...)
	case LevelInfo:
		to.Info(msg, args...)
	case LevelWarn:
		to.Warn(msg, args...)
	case LevelError:
		to.Error(msg, args...)
	}
}

type globalState struct {
	mu          sync.RWMutex
	initialized bool
	level       Level
	components  map[string]Level
	console     *Level
	writer      *RotatingWriter
	loggers     map[string]*Logger
	subscribers map[chan Entry]struct{}
	recent      *Ring
}

var state = &globalState{
	loggers:     make(map[string]*Logger),
	components:  make(map[string]Level),
	subscribers: make(map[chan Entry]struct{}),
}

// Init configures logging. It may be called again to reconfigure.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for name, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", name, err)
		}
		components[name] = parsed
	}

	var console *Level
	if cfg.ConsoleLevel != "" && !cfg.TUIMode {
		parsed, err := ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		console = &parsed
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.writer != nil {
		_ = state.writer.Close()
	}
	state.level = level
	state.components = components
	state.console = console
	state.writer = writer
	state.initialized = true
	if cfg.TUIMode {
		state.recent = NewRing(DefaultRingSize)
	} else {
		state.recent = nil
	}

	for _, l := range state.loggers {
		state.configure(l)
	}
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	state.mu.RLock()
	l, ok := state.loggers[component]
	state.mu.RUnlock()
	if ok {
		return l
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if l, ok := state.loggers[component]; ok {
		return l
	}
	l = &Logger{component: component}
	state.configure(l)
	state.loggers[component] = l
	return l
}

// configure points l at the current outputs. state.mu must be held.
func (s *globalState) configure(l *Logger) {
	level := s.level
	if override, ok := s.components[l.component]; ok {
		level = override
	}

	var out io.Writer = io.Discard
	if s.initialized && s.writer != nil {
		out = s.writer
	}
	file := log.NewWithOptions(out, log.Options{
		Level:           level.charm(),
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          l.component,
	})

	var console *log.Logger
	if s.initialized && s.console != nil {
		console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           s.console.charm(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          l.component,
		})
	}

	l.mu.Lock()
	l.file = file
	l.console = console
	l.mu.Unlock()
}

// Close flushes the log file, closes subscriber channels and returns every
// logger to the silent state.
func Close() error {
	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.initialized {
		return nil
	}

	for ch := range state.subscribers {
		close(ch)
		delete(state.subscribers, ch)
	}

	var err error
	if state.writer != nil {
		err = state.writer.Close()
		state.writer = nil
	}
	state.initialized = false
	state.components = make(map[string]Level)
	state.console = nil
	state.recent = nil
	for _, l := range state.loggers {
		state.configure(l)
	}

	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// Subscribe returns a channel of new entries. Entries are dropped when the
// channel is full.
func Subscribe() <-chan Entry {
	state.mu.Lock()
	defer state.mu.Unlock()

	ch := make(chan Entry, 100)
	state.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe stops delivery to ch. The caller drains it.
func Unsubscribe(ch <-chan Entry) {
	state.mu.Lock()
	defer state.mu.Unlock()

	for sub := range state.subscribers {
		if sub == ch {
			delete(state.subscribers, sub)
			return
		}
	}
}

// Recent returns the in-memory ring of recent entries, or nil outside TUI mode.
func Recent() *Ring {
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.recent
}

func (s *globalState) publish(e Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.recent != nil {
		s.recent.Add(e)
	}
	for ch := range s.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
