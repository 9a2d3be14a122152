package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config selects how log lines are formatted and where they go.
type Config struct {
	Level  string
	Format string // text | json
	Output string // stdout | stderr | file path

	// Async routes formatted lines through a bounded ring drained by one
	// goroutine. Producers block while the ring is full.
	Async     bool
	QueueSize int

	Disabled bool
}

var (
	currentLevel atomic.Int32
	disabled     atomic.Bool

	// mu is held shared by every write, so Configure and Close never tear
	// down a sink or file that a write is still using.
	mu     sync.RWMutex
	logger = newBase(os.Stdout, "text")
	sink   *asyncSink
	file   *os.File
)

func init() {
	currentLevel.Store(int32(LevelInfo))
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func newBase(w io.Writer, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   true,
		})
	}
	return l
}

// Configure replaces the active sink. A previously running async sink is
// flushed and stopped first.
func Configure(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if err := closeLocked(); err != nil {
		return err
	}

	var out io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", cfg.Output, err)
		}
		file = f
		out = f
	}

	if cfg.Async {
		sink = newAsyncSink(out, cfg.QueueSize)
		out = sink
	}

	logger = newBase(out, cfg.Format)
	disabled.Store(cfg.Disabled)
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	return nil
}

// SetOutput redirects synchronous logging to w. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	}
}

func GetLevel() Level {
	return Level(currentLevel.Load())
}

// Flush blocks until every line accepted so far has reached the output.
// A no-op for synchronous sinks.
func Flush() {
	mu.RLock()
	defer mu.RUnlock()
	if sink != nil {
		sink.flush()
	}
}

// Close flushes the async sink, stops its goroutine and closes any log file.
// Logging after Close falls back to stdout.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	err := closeLocked()
	logger = newBase(os.Stdout, "text")
	return err
}

func closeLocked() error {
	if sink != nil {
		sink.close()
		sink = nil
	}
	if file != nil {
		err := file.Close()
		file = nil
		return err
	}
	return nil
}

func log(level Level, format string, v ...any) {
	if disabled.Load() || level < GetLevel() {
		return
	}

	message := fmt.Sprintf(format, v...)

	mu.RLock()
	defer mu.RUnlock()

	switch level {
	case LevelDebug:
		logger.Debug(message)
	case LevelInfo:
		logger.Info(message)
	case LevelWarn:
		logger.Warn(message)
	default:
		logger.Error(message)
	}
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
