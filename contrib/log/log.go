package log

import (
	"time"
)

// DefaultMessageKey is the default message key.
const DefaultMessageKey = "msg"

// Logger is a key-value logger.
type Logger interface {
	Log(level Level, keyvals ...any) error
}

// Valuer returns a log value computed at log time.
type Valuer func() any

// Timestamp returns a timestamp Valuer with the given layout.
func Timestamp(layout string) Valuer {
	return func() any {
		return time.Now().Format(layout)
	}
}

type logger struct {
	next    Logger
	prefix  []any
	hasEval bool
}

// With returns a Logger with the given key-value pairs bound to every entry.
// Valuer values are evaluated at log time.
func With(l Logger, kv ...any) Logger {
	c, ok := l.(*logger)
	if !ok {
		return &logger{next: l, prefix: kv, hasEval: containsValuer(kv)}
	}
	merged := make([]any, 0, len(c.prefix)+len(kv))
	merged = append(merged, c.prefix...)
	merged = append(merged, kv...)
	return &logger{next: c.next, prefix: merged, hasEval: containsValuer(merged)}
}

func (l *logger) Log(level Level, keyvals ...any) error {
	kvs := make([]any, 0, len(l.prefix)+len(keyvals))
	if l.hasEval {
		for _, v := range l.prefix {
			if fn, ok := v.(Valuer); ok {
				v = fn()
			}
			kvs = append(kvs, v)
		}
	} else {
		kvs = append(kvs, l.prefix...)
	}
	kvs = append(kvs, keyvals...)
	return l.next.Log(level, kvs...)
}

// Enabled forwards the level check to the wrapped logger.
func (l *logger) Enabled(level Level) bool {
	if e, ok := l.next.(enabler); ok {
		return e.Enabled(level)
	}
	return true
}

func containsValuer(kv []any) bool {
	for _, v := range kv {
		if _, ok := v.(Valuer); ok {
			return true
		}
	}
	return false
}
