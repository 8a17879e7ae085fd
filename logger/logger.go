package logger

// Logger defines an interface for structured, context-aware logging.
//
// All logging methods accept a message and a variadic list of key-value pairs.
// Keys must be strings and must alternate with values: key1, val1, key2, val2, ...
type Logger interface {
	// Debugw logs a debug-level message with optional structured context.
	Debugw(msg string, keysAndValues ...any)

	// Infow logs an info-level message with optional structured context.
	Infow(msg string, keysAndValues ...any)

	// Warnw logs a warning-level message with optional structured context.
	Warnw(msg string, keysAndValues ...any)

	// Errorw logs an error-level message with optional structured context.
	Errorw(msg string, keysAndValues ...any)

	// Fatalw logs a fatal-level message and then terminates the application.
	Fatalw(msg string, keysAndValues ...any)

	// With returns a logger that adds the key-value pairs to every entry.
	With(keysAndValues ...any) Logger

	// WithComponent returns a logger labelled with a component name (e.g. "errhandler", "engine").
	WithComponent(name string) Logger
}
