package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel is the severity of a log line.
type LogLevel int

// Levels in increasing severity.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

// String returns the lower-case level name.
func (l LogLevel) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("unknown(%d)", int(l))
}

func (l LogLevel) tag() string {
	return "[" + strings.ToUpper(l.String()) + "] "
}

var (
	level     atomic.Int32
	levelOnce sync.Once
)

// ParseLevel converts a level name to a LogLevel. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		return LevelWarn
	}
	for l, n := range levelNames {
		if n == name {
			return LogLevel(l)
		}
	}
	return LevelInfo
}

// levelFromEnv gives DEBUG precedence over LOG_LEVEL.
func levelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

func loadLevel() {
	levelOnce.Do(func() { level.Store(int32(levelFromEnv())) })
}

// GetLevel returns the active level, read from the environment on first use.
func GetLevel() LogLevel {
	loadLevel()
	return LogLevel(level.Load())
}

// SetLevel overrides the level derived from the environment.
func SetLevel(l LogLevel) {
	loadLevel()
	level.Store(int32(l))
}

// IsDebugEnabled reports whether debug lines are written.
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logf(l LogLevel, format string, args []any) {
	if GetLevel() <= l {
		log.Printf(l.tag()+format, args...)
	}
}

// Debug logs when DEBUG=true or LOG_LEVEL=debug.
func Debug(format string, args ...any) { logf(LevelDebug, format, args) }

// Info logs at info level.
func Info(format string, args ...any) { logf(LevelInfo, format, args) }

// Warn logs at warn level.
func Warn(format string, args ...any) { logf(LevelWarn, format, args) }

// Error logs at error level.
func Error(format string, args ...any) { logf(LevelError, format, args) }

// Fatal logs regardless of level and exits.
func Fatal(format string, args ...any) {
	log.Fatalf("[FATAL] "+format, args...)
}

// Logger tags every line with a component name, e.g. "[INFO] [scan] ...".
// The zero value logs without a component tag.
type Logger struct {
	prefix string
}

// For returns a Logger for the named component.
func For(component string) *Logger {
	if component == "" {
		return &Logger{}
	}
	return &Logger{prefix: "[" + component + "] "}
}

func (l *Logger) Debug(format string, args ...any) { logf(LevelDebug, l.prefix+format, args) }
func (l *Logger) Info(format string, args ...any)  { logf(LevelInfo, l.prefix+format, args) }
func (l *Logger) Warn(format string, args ...any)  { logf(LevelWarn, l.prefix+format, args) }
func (l *Logger) Error(format string, args ...any) { logf(LevelError, l.prefix+format, args) }
