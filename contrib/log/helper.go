package log

import (
	"context"
	"fmt"
)

// Helper is a formatting logger bound to a Logger.
type Helper struct {
	logger Logger
}

// NewHelper returns a Helper over the given logger.
func NewHelper(l Logger) *Helper {
	return &Helper{logger: l}
}

// Context returns a Helper over the global logger. The context is reserved
// for request-scoped values bound by the caller via With.
func Context(_ context.Context) *Helper {
	return NewHelper(GetLogger())
}

// With returns a Helper with additional bound key-value pairs.
func (h *Helper) With(kv ...any) *Helper {
	return &Helper{logger: With(h.logger, kv...)}
}

// Enabled reports whether entries at the given level are emitted.
func (h *Helper) Enabled(level Level) bool {
	if e, ok := h.logger.(enabler); ok {
		return e.Enabled(level)
	}
	return Enabled(level)
}

func (h *Helper) Debugf(format string, a ...any) {
	_ = h.logger.Log(LevelDebug, DefaultMessageKey, fmt.Sprintf(format, a...))
}

func (h *Helper) Infof(format string, a ...any) {
	_ = h.logger.Log(LevelInfo, DefaultMessageKey, fmt.Sprintf(format, a...))
}

func (h *Helper) Warnf(format string, a ...any) {
	_ = h.logger.Log(LevelWarn, DefaultMessageKey, fmt.Sprintf(format, a...))
}

func (h *Helper) Errorf(format string, a ...any) {
	_ = h.logger.Log(LevelError, DefaultMessageKey, fmt.Sprintf(format, a...))
}
