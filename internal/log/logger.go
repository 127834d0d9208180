// Package log provides the leveled log sink shared by every component.
//
// Three levels are used by the bridge:
//   - Info: important events, always written
//   - Debug: diagnostic lines (status polls, decoder checksum failures)
//   - Verbose: per-frame and per-command traffic, noisiest of all
//
// Verbose is a custom zap level one step below Debug. Nothing in the bridge
// depends on whether a line is actually written.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// VerboseLevel sits below zap's DebugLevel.
const VerboseLevel = zapcore.DebugLevel - 1

// Entry is a copy of a written log line handed to the hooks given to New.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Name    string    `json:"name,omitempty"`
	Message string    `json:"message"`
}

// Logger is a named, leveled logger.
type Logger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// New creates a logger writing human-readable lines to w at the given
// minimum level ("info", "debug" or "verbose"). Each hook receives every
// entry that passes the level filter.
func New(level string, w io.Writer, hooks ...func(Entry)) (*Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	atomic := zap.NewAtomicLevelAt(lvl)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "name",
		MessageKey:       "message",
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeLevel:      encodeLevel,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(w),
		atomic,
	)

	var opts []zap.Option
	if len(hooks) > 0 {
		opts = append(opts, zap.Hooks(func(e zapcore.Entry) error {
			entry := Entry{
				Time:    e.Time,
				Level:   levelName(e.Level),
				Name:    e.LoggerName,
				Message: e.Message,
			}
			for _, h := range hooks {
				h(entry)
			}
			return nil
		}))
	}

	return &Logger{sugar: zap.New(core, opts...).Sugar(), level: atomic}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		sugar: zap.NewNop().Sugar(),
		level: zap.NewAtomicLevelAt(zapcore.FatalLevel),
	}
}

// ParseLevel maps a config string to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "verbose":
		return VerboseLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name), level: l.level}
}

// SetLevel changes the minimum level of this logger and all its children.
func (l *Logger) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(lvl)
	return nil
}

// Level returns the current minimum level name.
func (l *Logger) Level() string {
	return levelName(l.level.Level())
}

// DebugEnabled reports whether debug lines are written. Use it to skip
// building expensive diagnostic strings.
func (l *Logger) DebugEnabled() bool {
	return l.level.Enabled(zapcore.DebugLevel)
}

// VerboseEnabled reports whether verbose lines are written.
func (l *Logger) VerboseEnabled() bool {
	return l.level.Enabled(VerboseLevel)
}

func (l *Logger) Infof(template string, args ...any) {
	l.sugar.Infof(template, args...)
}

func (l *Logger) Debugf(template string, args ...any) {
	l.sugar.Debugf(template, args...)
}

func (l *Logger) Verbosef(template string, args ...any) {
	l.sugar.Logf(VerboseLevel, template, args...)
}

func (l *Logger) Warnf(template string, args ...any) {
	l.sugar.Warnf(template, args...)
}

func (l *Logger) Errorf(template string, args ...any) {
	l.sugar.Errorf(template, args...)
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

func encodeLevel(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(strings.ToUpper(levelName(lvl)))
}

func levelName(lvl zapcore.Level) string {
	if lvl == VerboseLevel {
		return "verbose"
	}
	return lvl.String()
}
