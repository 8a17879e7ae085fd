package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel maps a level name to a zerolog level. Defaults to info on unknown input.
func ParseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ZerologLogger implements Logger on top of zerolog.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger returns a Logger writing to w at the given minimum level.
// When console is true, entries are rendered for humans instead of as JSON.
func NewZerologLogger(w io.Writer, level string, console bool) Logger {
	if w == nil {
		w = os.Stderr
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
	return &ZerologLogger{zl: zl}
}

// FromZerolog wraps an existing zerolog.Logger.
func FromZerolog(zl zerolog.Logger) Logger {
	return &ZerologLogger{zl: zl}
}

func (l *ZerologLogger) Debugw(msg string, kvs ...any) { write(l.zl.Debug(), msg, kvs) }
func (l *ZerologLogger) Infow(msg string, kvs ...any)  { write(l.zl.Info(), msg, kvs) }
func (l *ZerologLogger) Warnw(msg string, kvs ...any)  { write(l.zl.Warn(), msg, kvs) }
func (l *ZerologLogger) Errorw(msg string, kvs ...any) { write(l.zl.Error(), msg, kvs) }

// Fatalw logs the message and exits the process with status 1.
func (l *ZerologLogger) Fatalw(msg string, kvs ...any) { write(l.zl.Fatal(), msg, kvs) }

// With adds key-value pairs to the logger's context.
func (l *ZerologLogger) With(kvs ...any) Logger {
	ctx := l.zl.With()
	forEachPair(kvs, func(key string, val any) {
		if err, ok := val.(error); ok {
			ctx = ctx.AnErr(key, err)
			return
		}
		ctx = ctx.Interface(key, val)
	})
	return &ZerologLogger{zl: ctx.Logger()}
}

// WithComponent returns a logger with a component name added to the context.
func (l *ZerologLogger) WithComponent(name string) Logger {
	return &ZerologLogger{zl: l.zl.With().Str("component", name).Logger()}
}

// write attaches key-value pairs to the event and sends it. A nil event
// (level disabled) is handled by zerolog itself.
func write(e *zerolog.Event, msg string, kvs []any) {
	forEachPair(kvs, func(key string, val any) {
		if err, ok := val.(error); ok {
			e = e.AnErr(key, err)
			return
		}
		e = e.Interface(key, val)
	})
	e.Msg(msg)
}

// forEachPair walks alternating key-value pairs, skipping non-string keys and
// a trailing key without a value.
func forEachPair(kvs []any, fn func(key string, val any)) {
	for i := 0; i+1 < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			continue
		}
		fn(key, kvs[i+1])
	}
}
