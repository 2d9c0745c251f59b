// Package log wraps go-logging with named module loggers that share one
// sink and a global verbosity, optionally overridden per module.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/op/go-logging"
)

type Level int

// The levels that can be passed to the SetLevel function.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

var levelTable = []struct {
	name    string
	backend logging.Level
}{
	Debug:   {"debug", logging.DEBUG},
	Info:    {"info", logging.INFO},
	Notice:  {"notice", logging.NOTICE},
	Warning: {"warning", logging.WARNING},
	Error:   {"error", logging.ERROR},
}

func (l Level) String() string {
	if l < Debug || l > Error {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelTable[l].name
}

func (l Level) backendLevel() logging.Level {
	if l < Debug {
		return logging.DEBUG
	}
	if l > Error {
		return logging.ERROR
	}
	return levelTable[l].backend
}

// Terminal sinks get colored level tags; everything else is plain text.
var (
	colorFormat = logging.MustStringFormatter(
		`%{color}[%{time:15:04:05.000}] [%{module}] [%{level:.4s}]%{color:reset} %{message}`,
	)
	plainFormat = logging.MustStringFormatter(
		`[%{time:15:04:05.000}] [%{module}] [%{level:.4s}] %{message}`,
	)
)

// Backend state. Levels are re-applied whenever the sink changes.
var (
	leveledBackend logging.LeveledBackend
	globalLevel    = Notice
	moduleLevels   = map[string]Level{}
)

// The logger interface
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// Create a new named logger.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// Redirect all loggers to sink. Color is used only when sink is a terminal.
func SetSink(sink io.Writer) {
	format := plainFormat
	if isTerminal(sink) {
		format = colorFormat
	}

	leveledBackend = logging.AddModuleLevel(
		logging.NewBackendFormatter(logging.NewLogBackend(sink, "", 0), format),
	)
	logging.SetBackend(leveledBackend)
	applyLevels()
}

// Set the verbosity of every module without an override.
func SetLevel(level Level) {
	globalLevel = level
	leveledBackend.SetLevel(level.backendLevel(), "")
}

// Override the verbosity of a single module.
func SetModuleLevel(module string, level Level) {
	moduleLevels[module] = level
	leveledBackend.SetLevel(level.backendLevel(), module)
}

// Parse a level name (debug, info, notice, warning, error).
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for level, entry := range levelTable {
		if entry.name == name {
			return Level(level), nil
		}
	}
	return Notice, fmt.Errorf("log: unknown level %q", name)
}

// Parse a "module=level" override as accepted by SetModuleLevel.
func ParseModuleLevel(spec string) (string, Level, error) {
	sep := strings.LastIndex(spec, "=")
	if sep <= 0 {
		return "", Notice, fmt.Errorf("log: expected module=level; got %q", spec)
	}
	level, err := ParseLevel(spec[sep+1:])
	if err != nil {
		return "", Notice, err
	}
	return strings.TrimSpace(spec[:sep]), level, nil
}

func applyLevels() {
	leveledBackend.SetLevel(globalLevel.backendLevel(), "")
	for module, level := range moduleLevels {
		leveledBackend.SetLevel(level.backendLevel(), module)
	}
}

func isTerminal(sink io.Writer) bool {
	f, ok := sink.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func init() {
	SetSink(os.Stdout)
}
