// Package logging provides the structured logger used across the pipeline.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Logger handles structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	WithComponent(component string) Logger
}

// ComponentKey is the field that carries the component name.
const ComponentKey = "component"

// Config configures the logger
type Config struct {
	// Level is the minimum level: debug, info, warn or error (default: info)
	Level string
	// Format is "text" or "json" for the console (default: json when ENVIRONMENT=production)
	Format string
	// Output is the console destination (default: os.Stderr)
	Output io.Writer
	// LogDir enables the daily log file when set
	LogDir string
	// Prefix is the log file prefix (e.g., "diary" produces diary-YYYY-MM-DD.log)
	Prefix string
	// RetentionDays is the number of days to retain old log files (default: 30)
	RetentionDays int
	// Component is attached to every entry as component=<name>
	Component string
}

// DefaultConfig returns a Config populated from LOG_LEVEL, LOG_DIR and ENVIRONMENT.
func DefaultConfig() Config {
	cfg := Config{
		Level:         os.Getenv("LOG_LEVEL"),
		LogDir:        os.Getenv("LOG_DIR"),
		Prefix:        DefaultPrefix,
		RetentionDays: DefaultRetentionDays,
	}
	if strings.EqualFold(os.Getenv("ENVIRONMENT"), "production") {
		cfg.Format = "json"
	}
	return cfg
}

// Defaults for the log file.
const (
	DefaultPrefix        = "diary"
	DefaultRetentionDays = 30
)

// LogrusLogger implements Logger on top of a logrus entry, optionally mirroring
// every entry into a daily rotated file.
type LogrusLogger struct {
	entry *logrus.Entry
	file  *dailyFile
}

// New creates a logger with the given configuration.
func New(config Config) (*LogrusLogger, error) {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = DefaultRetentionDays
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}

	base := logrus.New()
	base.SetOutput(config.Output)

	level := logrus.InfoLevel
	if config.Level != "" {
		parsed, err := logrus.ParseLevel(config.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}
	base.SetLevel(level)

	if config.Format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	}

	logger := &LogrusLogger{entry: logrus.NewEntry(base)}

	if config.LogDir != "" {
		file, err := openDailyFile(config.LogDir, config.Prefix, config.RetentionDays)
		if err != nil {
			return nil, err
		}
		logger.file = file
		base.AddHook(newFileHook(file))
	}

	if config.Component != "" {
		logger.entry = logger.entry.WithField(ComponentKey, config.Component)
	}

	return logger, nil
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &LogrusLogger{entry: logrus.NewEntry(base)}
}

// Debug logs a debug message
func (l *LogrusLogger) Debug(msg string, fields ...Field) {
	l.entry.WithFields(toLogrus(fields)).Debug(msg)
}

// Info logs an informational message
func (l *LogrusLogger) Info(msg string, fields ...Field) {
	l.entry.WithFields(toLogrus(fields)).Info(msg)
}

// Warn logs a warning
func (l *LogrusLogger) Warn(msg string, fields ...Field) {
	l.entry.WithFields(toLogrus(fields)).Warn(msg)
}

// Error logs an error message
func (l *LogrusLogger) Error(msg string, err error, fields ...Field) {
	e := l.entry.WithFields(toLogrus(fields))
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(msg)
}

// WithComponent returns a logger that tags entries with the component name
func (l *LogrusLogger) WithComponent(component string) Logger {
	return &LogrusLogger{
		entry: l.entry.WithField(ComponentKey, component),
		file:  l.file,
	}
}

// Close closes the log file, if any.
func (l *LogrusLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// LogPath returns the path of today's log file, or "" when file logging is off.
func (l *LogrusLogger) LogPath() string {
	if l.file == nil {
		return ""
	}
	return l.file.Path()
}

func toLogrus(fields []Field) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for _, f := range fields {
		if d, ok := f.Value.(time.Duration); ok {
			out[f.Key] = d.String()
			continue
		}
		out[f.Key] = f.Value
	}
	return out
}

// FilePath returns the log file path for the given day.
func FilePath(dir, prefix string, day time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", prefix, day.UTC().Format("2006-01-02")))
}
