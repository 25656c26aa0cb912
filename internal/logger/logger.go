package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Environment variable to configure log file path.
const envLogPath = "DISKCACHE_LOG"

// Options controls where and how much is logged. An empty Path logs to stderr.
type Options struct {
	Path       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

var (
	mu            sync.Mutex
	std           = newDefault()
	rotator       *lumberjack.Logger
	isInitialized bool
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// InitFromEnv initializes the logger using DISKCACHE_LOG or a file next
// to the executable. Used by stdio servers that must keep stdout clean.
func InitFromEnv() error {
	path := os.Getenv(envLogPath)
	if path == "" {
		if exePath, err := os.Executable(); err == nil {
			path = filepath.Join(filepath.Dir(exePath), "diskcache.log")
		} else {
			path = "./diskcache.log"
		}
	}
	_, err := Init(Options{Path: path})
	return err
}

// Init configures the package logger. Only the first call has an effect.
func Init(opts Options) (*logrus.Logger, error) {
	mu.Lock()
	defer mu.Unlock()
	if isInitialized {
		return std, nil
	}

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	var out io.Writer = os.Stderr
	if opts.Path != "" {
		if err := ensureParentDir(opts.Path); err != nil {
			return nil, err
		}
		rotator = &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   opts.Compress,
			LocalTime:  true,
		}
		out = rotator
	}

	std.SetLevel(level)
	std.SetOutput(out)
	isInitialized = true
	return std, nil
}

// L returns the package logger for structured use.
func L() *logrus.Logger { return std }

// Close closes the underlying log file, if open, and lets Init run again.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	isInitialized = false
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	std.SetOutput(os.Stderr)
	return err
}

// Printf logs a formatted message at info level.
func Printf(format string, args ...any) { std.Infof(format, args...) }

// Debugf logs debug messages.
func Debugf(format string, args ...any) { std.Debugf(format, args...) }

// Infof logs informational messages.
func Infof(format string, args ...any) { std.Infof(format, args...) }

// Warnf logs warnings.
func Warnf(format string, args ...any) { std.Warnf(format, args...) }

// Errorf logs errors.
func Errorf(format string, args ...any) { std.Errorf(format, args...) }

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
