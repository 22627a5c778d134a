package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config describes where and how log entries are written
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr or a file path
	TimeFormat string
}

// Logger is a zap logger whose level can change at runtime, for instance
// when the configuration file is edited.
type Logger struct {
	*zap.Logger
	level  zap.AtomicLevel
	closer io.Closer
}

// New builds a logger. An unknown format or level, or an output file that
// cannot be opened, is an error.
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	enc, err := encoder(cfg)
	if err != nil {
		return nil, err
	}
	sink, closer, err := output(cfg.Output)
	if err != nil {
		return nil, err
	}

	atomic := zap.NewAtomicLevelAt(level)
	return &Logger{
		Logger: zap.New(zapcore.NewCore(enc, sink, atomic),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		),
		level:  atomic,
		closer: closer,
	}, nil
}

// SetLevel changes the minimum enabled level. The level is left as is when
// the name is not recognised.
func (l *Logger) SetLevel(name string) error {
	level, err := parseLevel(name)
	if err != nil {
		return err
	}
	l.level.SetLevel(level)
	return nil
}

func (l *Logger) Level() zapcore.Level {
	return l.level.Level()
}

// Tee also writes every entry to extra, e.g. the OpenTelemetry log bridge.
func (l *Logger) Tee(extra zapcore.Core) *Logger {
	return &Logger{
		Logger: l.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, extra)
		})),
		level:  l.level,
		closer: l.closer,
	}
}

// Close flushes buffered entries and releases the output file, if any.
func (l *Logger) Close() error {
	err := l.Sync()
	if l.closer != nil {
		if cerr := l.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func parseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

func encoder(cfg Config) (zapcore.Encoder, error) {
	layout := cfg.TimeFormat
	if layout == "" {
		layout = DefaultTimeFormat
	}
	ec := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(layout),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
		return zapcore.NewJSONEncoder(ec), nil
	case "console":
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec), nil
	default:
		return nil, fmt.Errorf("log format %q: want json or console", cfg.Format)
	}
}

func output(target string) (zapcore.WriteSyncer, io.Closer, error) {
	switch strings.ToLower(target) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil, nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return zapcore.AddSync(f), f, nil
}
