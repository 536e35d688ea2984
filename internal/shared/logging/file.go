package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const logDirEnvVar = "BINDKIT_LOG_DIR"

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

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

var (
	fileLoggerInstance *fileLogger
	fileLoggerOnce     sync.Once
)

// fileLogger writes component-tagged lines to bindkit-debug.log.
type fileLogger struct {
	file      *os.File
	logger    *log.Logger
	level     Level
	mu        sync.Mutex
	component string
}

// NewComponentLogger returns the default application logger scoped to a component.
func NewComponentLogger(component string) Logger {
	base := getOrCreateFileLogger()
	return &fileLogger{
		file:      base.file,
		logger:    base.logger,
		level:     base.level,
		component: component,
	}
}

func getOrCreateFileLogger() *fileLogger {
	fileLoggerOnce.Do(func() {
		fileLoggerInstance = newFileLogger()
	})
	return fileLoggerInstance
}

func newFileLogger() *fileLogger {
	l := &fileLogger{level: LevelDebug}

	logDir, err := resolveLogDirectory()
	if err != nil {
		log.Printf("logging: failed to resolve log directory: %v", err)
		return l
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("logging: failed to create log directory %s: %v", logDir, err)
		return l
	}

	logPath := filepath.Join(logDir, "bindkit-debug.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logging: failed to open log file: %v", err)
		return l
	}

	l.file = file
	l.logger = log.New(file, "", 0) // formatted by write
	return l
}

func resolveLogDirectory() (string, error) {
	if override := strings.TrimSpace(os.Getenv(logDirEnvVar)); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".bindkit", "logs"), nil
}

func (l *fileLogger) write(level Level, format string, args ...any) {
	if level < l.level || l.logger == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	stamp := time.Now().Format("2006-01-02 15:04:05.000")
	if l.component != "" {
		l.logger.Printf("%s [%s] [%s] %s", stamp, level, l.component, msg)
	} else {
		l.logger.Printf("%s [%s] %s", stamp, level, msg)
	}
}

func (l *fileLogger) Debug(format string, args ...any) { l.write(LevelDebug, format, args...) }
func (l *fileLogger) Info(format string, args ...any)  { l.write(LevelInfo, format, args...) }
func (l *fileLogger) Warn(format string, args ...any)  { l.write(LevelWarn, format, args...) }
func (l *fileLogger) Error(format string, args ...any) { l.write(LevelError, format, args...) }
