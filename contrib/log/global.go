package log

import (
	"fmt"
	"os"
	"sync"
)

var (
	mu            sync.RWMutex
	global Logger = NewLogger()
)

// SetLogger replaces the process-wide logger.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
}

// GetLogger returns the process-wide logger.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// DefaultLogger is the logger used before SetLogger is called.
var DefaultLogger = GetLogger()

type enabler interface {
	Enabled(Level) bool
}

// Enabled reports whether the global logger emits entries at the given level.
func Enabled(level Level) bool {
	if e, ok := GetLogger().(enabler); ok {
		return e.Enabled(level)
	}
	return true
}

func logf(level Level, format string, a ...any) {
	_ = GetLogger().Log(level, DefaultMessageKey, fmt.Sprintf(format, a...))
}

func Debug(a ...any)                 { _ = GetLogger().Log(LevelDebug, DefaultMessageKey, fmt.Sprint(a...)) }
func Debugf(format string, a ...any) { logf(LevelDebug, format, a...) }
func Info(a ...any)                  { _ = GetLogger().Log(LevelInfo, DefaultMessageKey, fmt.Sprint(a...)) }
func Infof(format string, a ...any)  { logf(LevelInfo, format, a...) }
func Warn(a ...any)                  { _ = GetLogger().Log(LevelWarn, DefaultMessageKey, fmt.Sprint(a...)) }
func Warnf(format string, a ...any)  { logf(LevelWarn, format, a...) }
func Error(a ...any)                 { _ = GetLogger().Log(LevelError, DefaultMessageKey, fmt.Sprint(a...)) }
func Errorf(format string, a ...any) { logf(LevelError, format, a...) }

// Fatal logs at fatal level and exits.
func Fatal(a ...any) {
	_ = GetLogger().Log(LevelFatal, DefaultMessageKey, fmt.Sprint(a...))
	os.Exit(1)
}

// Fatalf logs at fatal level and exits.
func Fatalf(format string, a ...any) {
	logf(LevelFatal, format, a...)
	os.Exit(1)
}
