package logger

// NoOpLogger discards every entry. When OnLog is set it receives each entry
// with its level name instead, which lets tests assert on what was logged.
type NoOpLogger struct {
	OnLog func(level, msg string, keysAndValues ...any)
}

// NewNoOpLogger returns a Logger that discards all log messages.
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debugw(msg string, kvs ...any) { l.emit("debug", msg, kvs) }
func (l *NoOpLogger) Infow(msg string, kvs ...any)  { l.emit("info", msg, kvs) }
func (l *NoOpLogger) Warnw(msg string, kvs ...any)  { l.emit("warn", msg, kvs) }
func (l *NoOpLogger) Errorw(msg string, kvs ...any) { l.emit("error", msg, kvs) }

// Fatalw never terminates the process.
func (l *NoOpLogger) Fatalw(msg string, kvs ...any) { l.emit("fatal", msg, kvs) }

// With returns l; context is not stored.
func (l *NoOpLogger) With(...any) Logger { return l }

// WithComponent returns l; context is not stored.
func (l *NoOpLogger) WithComponent(string) Logger { return l }

func (l *NoOpLogger) emit(level, msg string, kvs []any) {
	if l.OnLog != nil {
		l.OnLog(level, msg, kvs...)
	}
}
