package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/studio233/batchd/ctxutil"
	"github.com/studio233/batchd/logging/logger/config"
)

// Key constants
const (
	VersionKey = "version"
	UserKey    = "user_id"
	badKey     = "!BADKEY"
)

// Logger represents logger instance
type Logger struct {
	*logrus.Logger
	mu           sync.Mutex
	version      string
	logFile      *os.File
	logPath      string
	desensitizer *Desensitizer
	stop         chan struct{}
}

var (
	// stdLogger is the global logger
	stdLogger *Logger
	// once ensures that the logger is initialized only once
	once sync.Once
)

// StdLogger returns the single logger instance
func StdLogger() *Logger {
	once.Do(func() {
		stdLogger = &Logger{
			Logger:       logrus.New(),
			desensitizer: NewDesensitizer(nil),
		}
		stdLogger.SetFormatter(&logrus.JSONFormatter{})
	})
	return stdLogger
}

// New initializes the standard logger from cfg and returns its cleanup
func New(cfg *config.Config) (func(), error) {
	return StdLogger().Init(cfg)
}

// SetVersion sets the version for logging
func (l *Logger) SetVersion(v string) {
	l.version = v
}

// Init initializes the logger with the given configuration
func (l *Logger) Init(c *config.Config) (func(), error) {
	if c == nil {
		return func() {}, nil
	}

	l.SetLevel(c.Level)
	l.desensitizer = NewDesensitizer(c.Desensitization)

	switch c.Format {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	switch c.Output {
	case "stderr":
		l.SetOutput(os.Stderr)
	case "file":
		l.logPath = c.OutputFile
		if l.logPath == "" {
			return nil, fmt.Errorf("logger output is file but output_file is empty")
		}
		if err := l.setupLogFile(); err != nil {
			return nil, err
		}
		l.stop = make(chan struct{})
		go l.periodicLogRotation()
	default:
		l.SetOutput(os.Stdout)
	}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.stop != nil {
			close(l.stop)
			l.stop = nil
		}
		if l.logFile != nil {
			_ = l.logFile.Close()
			l.logFile = nil
		}
	}, nil
}

// setupLogFile sets up the log file
func (l *Logger) setupLogFile() error {
	if err := os.MkdirAll(filepath.Dir(l.logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return l.rotateLog()
}

// rotateLog switches output to the file for the current day
func (l *Logger) rotateLog() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		if err := l.logFile.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
	}

	logFilePath := fmt.Sprintf("%s.%s.log", strings.TrimSuffix(l.logPath, ".log"), time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open new log file: %w", err)
	}

	l.logFile = f
	l.Logger.SetOutput(f)
	return nil
}

// periodicLogRotation rotates the log every 24 hours
func (l *Logger) periodicLogRotation() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if err := l.rotateLog(); err != nil {
				l.Logger.Errorf("Error rotating log: %v", err)
			}
		}
	}
}

// entryFromContext creates a new log entry with fields from context and kv pairs
func (l *Logger) entryFromContext(ctx context.Context, kv ...any) *logrus.Entry {
	fields := logrus.Fields{}

	if ctx != nil {
		if traceID := ctxutil.GetTraceID(ctx); traceID != "" {
			fields[ctxutil.TraceIDKey] = traceID
		}
		if uid := ctxutil.GetUserID(ctx); uid != "" {
			fields[UserKey] = uid
		}
	}
	if l.version != "" {
		fields[VersionKey] = l.version
	}

	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok || i+1 >= len(kv) {
			fields[badKey] = kv[i]
			continue
		}
		val := kv[i+1]
		if err, isErr := val.(error); isErr && err != nil {
			val = err.Error()
		}
		fields[key] = val
	}

	return l.WithFields(l.desensitizer.DesensitizeFields(fields))
}

// Debug logs a debug message with key/value pairs
func (l *Logger) Debug(ctx context.Context, msg string, kv ...any) {
	l.entryFromContext(ctx, kv...).Debug(msg)
}

// Info logs an info message with key/value pairs
func (l *Logger) Info(ctx context.Context, msg string, kv ...any) {
	l.entryFromContext(ctx, kv...).Info(msg)
}

// Warn logs a warning message with key/value pairs
func (l *Logger) Warn(ctx context.Context, msg string, kv ...any) {
	l.entryFromContext(ctx, kv...).Warn(msg)
}

// Error logs an error message with key/value pairs
func (l *Logger) Error(ctx context.Context, msg string, kv ...any) {
	l.entryFromContext(ctx, kv...).Error(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(ctx context.Context, format string, args ...any) {
	l.entryFromContext(ctx).Infof(format, args...)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(ctx context.Context, format string, args ...any) {
	l.entryFromContext(ctx).Errorf(format, args...)
}

// SetOutput sets the output destination for the logger
func (l *Logger) SetOutput(out io.Writer) {
	l.Logger.SetOutput(out)
}

// SetLevel updates the level at runtime, used on config reload
func (l *Logger) SetLevel(level logrus.Level) {
	l.Logger.SetLevel(level)
}

// Package-level helpers writing through the standard logger.

func Debug(ctx context.Context, msg string, kv ...any) { StdLogger().Debug(ctx, msg, kv...) }
func Info(ctx context.Context, msg string, kv ...any)  { StdLogger().Info(ctx, msg, kv...) }
func Warn(ctx context.Context, msg string, kv ...any)  { StdLogger().Warn(ctx, msg, kv...) }
func Error(ctx context.Context, msg string, kv ...any) { StdLogger().Error(ctx, msg, kv...) }
