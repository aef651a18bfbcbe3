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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"legmirror/pkg/config"
)

// Version is stamped into every log line; cmd/legmirror overrides it at startup.
var Version = "dev"

// Logger is the logging surface used across legmirror. Field maps are
// flattened into the structured record.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	WithError(err error) Logger
	WithContext(ctx context.Context) Logger

	DebugWithFields(msg string, fields map[string]any)
	InfoWithFields(msg string, fields map[string]any)
	WarnWithFields(msg string, fields map[string]any)
	ErrorWithFields(msg string, fields map[string]any)
	FatalWithFields(msg string, fields map[string]any)

	GetZerolog() *zerolog.Logger
}

// zl wraps a zerolog.Logger. Bound fields live in the zerolog context, so
// deriving a logger never touches its parent.
type zl struct {
	z zerolog.Logger
}

// New creates a Logger writing to stdout and, when cfg.File is set, to that
// file as JSON as well.
func New(cfg *config.LoggingConfig) (Logger, error) {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with the console destination replaced by out.
func NewWithWriter(cfg *config.LoggingConfig, out io.Writer) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.TimeFieldFormat = time.RFC3339

	sinks := []io.Writer{out}
	if !cfg.JSON {
		sinks[0] = consoleWriter(out)
	}
	if cfg.File != "" {
		f, err := openLogFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to setup file output: %w", err)
		}
		sinks = append(sinks, f)
	}

	z := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(level).
		With().
		Timestamp().
		Str("app", "legmirror").
		Str("version", Version).
		Logger()
	return &zl{z: z}, nil
}

var levelTags = map[string]string{
	"debug": "\033[37mDEBG\033[0m",
	"info":  "\033[32mINFO\033[0m",
	"warn":  "\033[33mWARN\033[0m",
	"error": "\033[31mERRO\033[0m",
	"fatal": "\033[35mFATL\033[0m",
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:           out,
		TimeFormat:    "15:04:05",
		FieldsExclude: []string{"app", "version"},
		FormatLevel: func(i any) string {
			s, _ := i.(string)
			if tag, ok := levelTags[s]; ok {
				return tag
			}
			return strings.ToUpper(s)
		},
		FormatMessage: func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprint("| ", i)
		},
		FormatFieldName: func(i any) string {
			return fmt.Sprintf("\033[36m%s\033[0m:", i)
		},
	}
}

func openLogFile(path string) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// parseLogLevel accepts zerolog level names plus "warning". Empty means
// info.
func parseLogLevel(level string) (zerolog.Level, error) {
	switch l := strings.ToLower(level); l {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "debug", "info", "warn", "error", "fatal", "disabled":
		return zerolog.ParseLevel(l)
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l *zl) Debug(msg string) { l.z.Debug().Msg(msg) }
func (l *zl) Info(msg string)  { l.z.Info().Msg(msg) }
func (l *zl) Warn(msg string)  { l.z.Warn().Msg(msg) }
func (l *zl) Error(msg string) { l.z.Error().Msg(msg) }
func (l *zl) Fatal(msg string) { l.z.Fatal().Msg(msg) }

func (l *zl) DebugWithFields(msg string, fields map[string]any) { l.z.Debug().Fields(fields).Msg(msg) }
func (l *zl) InfoWithFields(msg string, fields map[string]any)  { l.z.Info().Fields(fields).Msg(msg) }
func (l *zl) WarnWithFields(msg string, fields map[string]any)  { l.z.Warn().Fields(fields).Msg(msg) }
func (l *zl) ErrorWithFields(msg string, fields map[string]any) { l.z.Error().Fields(fields).Msg(msg) }
func (l *zl) FatalWithFields(msg string, fields map[string]any) { l.z.Fatal().Fields(fields).Msg(msg) }

func (l *zl) WithField(key string, value any) Logger {
	return &zl{z: l.z.With().Interface(key, value).Logger()}
}

func (l *zl) WithFields(fields map[string]any) Logger {
	return &zl{z: l.z.With().Fields(fields).Logger()}
}

func (l *zl) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return &zl{z: l.z.With().Err(err).Logger()}
}

func (l *zl) WithContext(ctx context.Context) Logger {
	return &zl{z: l.z.With().Ctx(ctx).Logger()}
}

func (l *zl) GetZerolog() *zerolog.Logger {
	return &l.z
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// Initialize builds a logger from cfg and installs it globally.
func Initialize(cfg *config.LoggingConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// SetLogger replaces the global logger and zerolog's package logger.
func SetLogger(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
	if z := l.GetZerolog(); z != nil {
		log.Logger = *z
	}
}

// GetLogger returns the global logger, creating an info-level console
// logger on first use.
func GetLogger() Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger, _ = New(&config.LoggingConfig{Level: "info"})
	}
	return globalLogger
}

func Debug(msg string) { GetLogger().Debug(msg) }
func Info(msg string)  { GetLogger().Info(msg) }
func Warn(msg string)  { GetLogger().Warn(msg) }
func Error(msg string) { GetLogger().Error(msg) }

func WithField(key string, value any) Logger  { return GetLogger().WithField(key, value) }
func WithFields(fields map[string]any) Logger { return GetLogger().WithFields(fields) }
func WithError(err error) Logger              { return GetLogger().WithError(err) }

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &zl{z: zerolog.Nop()}
}
