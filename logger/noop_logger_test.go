package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOpLogger(t *testing.T) {
	l := NewNoOpLogger()

	assert.NotPanics(t, func() {
		l.Debugw("debug message", "key", "value")
		l.Infow("info message", "key", "value")
		l.Warnw("warn message", "key", "value")
		l.Errorw("error message", "key", "value")
		l.Fatalw("fatal message", "key", "value")
	})

	chained := l.WithComponent("errhandler").With("key", "value")
	assert.Same(t, l, chained)
}

func TestNoOpLogger_OnLog(t *testing.T) {
	type entry struct {
		level, msg string
		kvs        []any
	}
	var got []entry
	l := &NoOpLogger{OnLog: func(level, msg string, kvs ...any) {
		got = append(got, entry{level, msg, kvs})
	}}

	l.Warnw("background error recorded", "severity", "hard")
	l.Fatalw("shutdown contract violated")

	assert.Equal(t, []entry{
		{"warn", "background error recorded", []any{"severity", "hard"}},
		{"fatal", "shutdown contract violated", nil},
	}, got)
}
