package logger

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging verbosity level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// DebugCategory scopes verbose tracing to one driver concern at a time
type DebugCategory string

const (
	DebugSignaling  DebugCategory = "signaling"
	DebugDataChannel DebugCategory = "datachannel"
	DebugLidar      DebugCategory = "lidar"
	DebugMedia      DebugCategory = "media"
	DebugHeartbeat  DebugCategory = "heartbeat"
	DebugAll        DebugCategory = "all"
)

// OutputFormat determines the log output format
type OutputFormat string

const (
	FormatJSON    OutputFormat = "json"
	FormatConsole OutputFormat = "console"
)

// Config holds logger configuration
type Config struct {
	Level             LogLevel
	Format            OutputFormat
	OutputFile        string
	EnabledCategories map[DebugCategory]bool
	mu                sync.RWMutex
}

// NewConfig creates a new logger configuration with defaults
func NewConfig() *Config {
	return &Config{
		Level:             LevelInfo,
		Format:            FormatConsole,
		OutputFile:        "",
		EnabledCategories: make(map[DebugCategory]bool),
	}
}

// ParseLevel converts a string to LogLevel
func ParseLevel(level string) (LogLevel, error) {
	switch level {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO":
		return LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// ParseFormat converts a string to OutputFormat
func ParseFormat(format string) (OutputFormat, error) {
	switch format {
	case "json", "JSON":
		return FormatJSON, nil
	case "text", "TEXT", "console", "CONSOLE":
		return FormatConsole, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be json or console)", format)
	}
}

func (l LogLevel) toZerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// EnableCategory enables a specific debug category
func (c *Config) EnableCategory(category DebugCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if category == DebugAll {
		c.EnabledCategories[DebugSignaling] = true
		c.EnabledCategories[DebugDataChannel] = true
		c.EnabledCategories[DebugLidar] = true
		c.EnabledCategories[DebugMedia] = true
		c.EnabledCategories[DebugHeartbeat] = true
	} else {
		c.EnabledCategories[category] = true
	}
}

// IsCategoryEnabled checks if a debug category is enabled
func (c *Config) IsCategoryEnabled(category DebugCategory) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.EnabledCategories[category]
}

// IsDebugEnabled checks if any debug category is enabled
func (c *Config) IsDebugEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.EnabledCategories) > 0
}

// Logger wraps zerolog.Logger with category-gated debug helpers
type Logger struct {
	zl     zerolog.Logger
	config *Config
	file   *os.File
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New creates a new Logger instance with the given configuration
func New(cfg *Config) (*Logger, error) {
	var writer = os.Stdout
	var file *os.File

	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.OutputFile, err)
		}
		writer = f
		file = f
	}

	var zl zerolog.Logger
	switch cfg.Format {
	case FormatJSON:
		zl = zerolog.New(writer)
	default:
		zl = zerolog.New(zerolog.ConsoleWriter{Out: writer, NoColor: cfg.OutputFile != ""})
	}
	zl = zl.Level(cfg.Level.toZerolog()).With().Timestamp().Logger()

	return &Logger{zl: zl, config: cfg, file: file}, nil
}

// Close closes the log file if one was opened
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func fields(e *zerolog.Event, args ...any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}

// Debug logs at Debug level
func (l *Logger) Debug(msg string, args ...any) {
	fields(l.zl.Debug(), args...).Msg(msg)
}

// Info logs at Info level
func (l *Logger) Info(msg string, args ...any) {
	fields(l.zl.Info(), args...).Msg(msg)
}

// Warn logs at Warn level
func (l *Logger) Warn(msg string, args ...any) {
	fields(l.zl.Warn(), args...).Msg(msg)
}

// Error logs at Error level
func (l *Logger) Error(msg string, args ...any) {
	fields(l.zl.Error(), args...).Msg(msg)
}

// category-specific logging methods, gated on the matching debug category

// DebugSignaling logs signaling-handshake details when the signaling category is enabled
func (l *Logger) DebugSignaling(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugSignaling) {
		l.Debug(msg, append([]any{"category", "signaling"}, args...)...)
	}
}

// DebugDataChannel logs data-channel framing details when the datachannel category is enabled
func (l *Logger) DebugDataChannel(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugDataChannel) {
		l.Debug(msg, append([]any{"category", "datachannel"}, args...)...)
	}
}

// DebugLidar logs LiDAR frame decode details when the lidar category is enabled
func (l *Logger) DebugLidar(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugLidar) {
		l.Debug(msg, append([]any{"category", "lidar"}, args...)...)
	}
}

// DebugMedia logs audio/video track details when the media category is enabled
func (l *Logger) DebugMedia(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugMedia) {
		l.Debug(msg, append([]any{"category", "media"}, args...)...)
	}
}

// DebugHeartbeat logs heartbeat/network-status chatter when the heartbeat category is enabled
func (l *Logger) DebugHeartbeat(msg string, args ...any) {
	if l.config.IsCategoryEnabled(DebugHeartbeat) {
		l.Debug(msg, append([]any{"category", "heartbeat"}, args...)...)
	}
}

// WithContext returns the logger unchanged; reserved for future request-scoped fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return l
}

// With returns a new Logger with the given attributes attached to every future event
func (l *Logger) With(args ...any) *Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, args[i+1])
	}
	return &Logger{zl: ctx.Logger(), config: l.config, file: l.file}
}

// SetDefault sets the global default logger
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the default logger, creating one if necessary
func Default() *Logger {
	once.Do(func() {
		cfg := NewConfig()
		logger, err := New(cfg)
		if err != nil {
			logger = &Logger{zl: zerolog.New(os.Stderr), config: cfg}
		}
		defaultLogger = logger
	})
	return defaultLogger
}

// Debug logs at Debug level using the default logger
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }

// Info logs at Info level using the default logger
func Info(msg string, args ...any) { Default().Info(msg, args...) }

// Warn logs at Warn level using the default logger
func Warn(msg string, args ...any) { Default().Warn(msg, args...) }

// Error logs at Error level using the default logger
func Error(msg string, args ...any) { Default().Error(msg, args...) }
