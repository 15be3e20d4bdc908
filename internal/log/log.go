package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelNotice  Level = "NOTICE"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// ParseLevel maps a config/log-sink level name to a Level. Unknown names
// fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config controls the global logger.
type Config struct {
	// Level is the minimum level written: debug, info, notice, warning, error.
	Level string
	// Format is "console" or "json".
	Format string
	// Dir, if set, receives daily rotating log files in addition to stderr.
	Dir string
	// MaxFiles is how many rotated files are kept in Dir. Zero means 5.
	MaxFiles int
	// Output overrides stderr (tests).
	Output io.Writer
}

var (
	mu       sync.RWMutex
	logger   zerolog.Logger
	minLevel = LevelInfo
	fileOut  *RotatingFile
	initOnce sync.Once
)

func initDefault() {
	initOnce.Do(func() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	})
}

// Init (re)configures the global logger. It is safe to call more than once;
// a previously opened log file is closed.
func Init(cfg Config) error {
	initDefault()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: cfg.Output != nil}
	}

	var rf *RotatingFile
	if cfg.Dir != "" {
		var err error
		rf, err = NewRotatingFile(cfg.Dir, "showsync", cfg.MaxFiles)
		if err != nil {
			return fmt.Errorf("open log dir: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, rf)
	}

	zerolog.TimeFieldFormat = time.RFC3339

	mu.Lock()
	defer mu.Unlock()
	if fileOut != nil {
		_ = fileOut.Close()
	}
	fileOut = rf
	logger = zerolog.New(out).With().Timestamp().Logger()
	minLevel = ParseLevel(cfg.Level)
	return nil
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileOut == nil {
		return nil
	}
	err := fileOut.Close()
	fileOut = nil
	return err
}

// LatestFile returns the path of the newest rotated log file, or "" when
// file logging is disabled or nothing has been written yet.
func LatestFile() string {
	mu.RLock()
	defer mu.RUnlock()
	if fileOut == nil {
		return ""
	}
	return fileOut.Latest()
}

func SetLevel(l Level) {
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Notice(msg string, kv ...any) {
	logWithLevel(LevelNotice, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(LevelWarning, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

func logWithLevel(level Level, msg string, kv ...any) {
	initDefault()

	mu.RLock()
	l := logger
	enabledNow := enabled(minLevel, level)
	mu.RUnlock()
	if !enabledNow {
		return
	}

	ev := l.WithLevel(zerologLevel(level))
	if level == LevelNotice {
		// zerolog has no notice level; keep the distinction as a field.
		ev = ev.Bool("notice", true)
	}
	ev.Fields(pairs(kv)).Msg(msg)
}

func rank(l Level) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelNotice:
		return 2
	case LevelWarning:
		return 3
	case LevelError:
		return 4
	default:
		return 1
	}
}

func enabled(min, level Level) bool {
	return rank(level) >= rank(min)
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarning:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// pairs turns key, value, key, value, ... into a field map. Non-string keys
// and a trailing odd value are dropped.
func pairs(kv []any) map[string]any {
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		val := kv[i+1]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		out[key] = val
	}
	return out
}

func formatKVs(kv ...any) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(kv[i+1]))
	}
	return b.String()
}
