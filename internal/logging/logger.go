package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/muesli/reflow/truncate"
)

// Level is a log severity
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var level atomic.Int32

func init() {
	level.Store(int32(LevelInfo))
	if os.Getenv("DEBUG") == "true" {
		level.Store(int32(LevelDebug))
	}
	log.SetFlags(0)
	log.SetOutput(&utcWriter{out: os.Stderr})
}

// ParseLevel maps debug|info|warn|error to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// SetLevel sets the minimum level that is written
func SetLevel(l Level) {
	level.Store(int32(l))
}

// Enabled reports whether messages at l are written
func Enabled(l Level) bool {
	return l >= Level(level.Load())
}

// Setup configures the global logger. If logFile is non-empty, output is
// written to both stderr and the file. The returned closer releases the file.
func Setup(lvl string, logFile string) (io.Closer, error) {
	SetLevel(ParseLevel(lvl))

	if logFile == "" {
		log.SetOutput(&utcWriter{out: os.Stderr})
		return io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(&utcWriter{out: io.MultiWriter(os.Stderr, f)})
	return f, nil
}

// SetOutput redirects log output (used by the MCP server to keep stdout clean)
func SetOutput(w io.Writer) {
	log.SetOutput(&utcWriter{out: w})
}

// Debug logs a debug message (only shown at debug level)
func Debug(subsystem, format string, args ...any) {
	logf(LevelDebug, subsystem, format, args...)
}

// Info logs an informational message
func Info(subsystem, format string, args ...any) {
	logf(LevelInfo, subsystem, format, args...)
}

// Warn logs a recoverable problem
func Warn(subsystem, format string, args ...any) {
	logf(LevelWarn, subsystem, format, args...)
}

// Error logs a failure
func Error(subsystem, format string, args ...any) {
	logf(LevelError, subsystem, format, args...)
}

func logf(l Level, subsystem, format string, args ...any) {
	if !Enabled(l) {
		return
	}
	log.Printf("%s [%s] "+format, append([]any{l.String(), subsystem}, args...)...)
}

// Truncate truncates a string to maxLen and adds ellipsis
func Truncate(s string, maxLen int) string {
	// Replace newlines with spaces for one-line logs
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	return truncate.StringWithTail(s, uint(maxLen), "...")
}

// utcWriter prefixes each line with a UTC timestamp
type utcWriter struct {
	out io.Writer
}

func (w *utcWriter) Write(p []byte) (int, error) {
	stamp := time.Now().UTC().Format("2006-01-02T15:04:05Z") + " "
	if _, err := io.WriteString(w.out, stamp); err != nil {
		return 0, err
	}
	return w.out.Write(p)
}
