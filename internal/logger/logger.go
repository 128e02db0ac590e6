package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the logging level
type Level int

const (
	// DEBUG level for detailed debugging information
	DEBUG Level = iota
	// INFO level for informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
)

// LogFileName is the name of the active log file inside LogDir
const LogFileName = "ezcapture.log"

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger handles logging to a rotating file
type Logger struct {
	sink  *sink
	sugar *zap.SugaredLogger
}

// sink is shared by a logger and every logger derived from it with Named
type sink struct {
	mu     sync.RWMutex
	level  Level
	atom   zap.AtomicLevel
	file   *lumberjack.Logger
	closed bool
}

// Config holds logger configuration
type Config struct {
	LogDir        string
	Level         Level
	RetentionDays int
	MaxSizeMB     int
	Console       bool
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		LogDir:        DefaultLogDir(),
		Level:         INFO,
		RetentionDays: 7,
		MaxSizeMB:     10,
	}
}

// DefaultLogDir returns the per-user log directory
func DefaultLogDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		dir = homeDir
	}
	return filepath.Join(dir, "EzCapture", "logs")
}

// New creates a new logger
func New(config Config) (*Logger, error) {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: failed to create log directory: %w", err)
	}

	maxSize := config.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}

	file := &lumberjack.Logger{
		Filename: filepath.Join(config.LogDir, LogFileName),
		MaxSize:  maxSize,
		MaxAge:   config.RetentionDays,
	}

	// open eagerly so permission problems surface here
	if _, err := file.Write(nil); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: failed to open log file: %w", err)
	}

	atom := zap.NewAtomicLevelAt(config.Level.zapLevel())
	l := &Logger{
		sink: &sink{level: config.Level, atom: atom, file: file},
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(file), atom)}
	if config.Console {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), atom))
	}

	l.sugar = zap.New(zapcore.NewTee(cores...)).Sugar()

	if err := cleanOldLogs(config.LogDir, config.RetentionDays); err != nil {
		l.Warn("Failed to clean old logs: %v", err)
	}

	return l, nil
}

// cleanOldLogs deletes log files older than retentionDays.
// lumberjack only prunes its own rotated backups, and only when it rotates.
func cleanOldLogs(logDir string, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(logDir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == LogFileName {
			continue
		}
		if filepath.Ext(entry.Name()) != ".log" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffDate) {
			// continue even if we can't delete a file
			_ = os.Remove(filepath.Join(logDir, entry.Name()))
		}
	}

	return nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{
		sink:  &sink{level: ERROR, atom: zap.NewAtomicLevelAt(zapcore.ErrorLevel)},
		sugar: zap.NewNop().Sugar(),
	}
}

// write runs fn unless the logger is closed. The read lock keeps Close
// from closing the file under a write in progress.
func (l *Logger) write(fn func(*zap.SugaredLogger)) {
	if l == nil {
		return
	}
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	if l.sink.closed {
		return
	}
	fn(l.sugar)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.write(func(s *zap.SugaredLogger) { s.Debugf(format, v...) })
}

// Info logs an informational message
func (l *Logger) Info(format string, v ...interface{}) {
	l.write(func(s *zap.SugaredLogger) { s.Infof(format, v...) })
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.write(func(s *zap.SugaredLogger) { s.Warnf(format, v...) })
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.write(func(s *zap.SugaredLogger) { s.Errorf(format, v...) })
}

// Named returns a logger whose lines are prefixed with the component name.
// It shares the file and level with l; closing either closes both.
func (l *Logger) Named(name string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		sink:  l.sink,
		sugar: l.sugar.Named(name),
	}
}

// Close flushes and closes the log file
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.closed {
		return nil
	}
	l.sink.closed = true
	_ = l.sugar.Sync()
	if l.sink.file != nil {
		return l.sink.file.Close()
	}
	return nil
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	l.sink.level = level
	l.sink.atom.SetLevel(level.zapLevel())
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() Level {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()

	return l.sink.level
}
