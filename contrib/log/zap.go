package log

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _ Logger = (*zapLogger)(nil)

type zapLogger struct {
	log   *zap.Logger
	level zap.AtomicLevel
}

type zapOptions struct {
	level      Level
	path       string
	caller     bool
	maxSize    int
	maxAge     int
	maxBackups int
	compress   bool
}

// ZapOption configures the zap-backed logger.
type ZapOption func(*zapOptions)

// WithLevel sets the minimum level.
func WithLevel(l Level) ZapOption {
	return func(o *zapOptions) { o.level = l }
}

// WithPath writes log output to a lumberjack-rotated file instead of stderr.
func WithPath(path string) ZapOption {
	return func(o *zapOptions) { o.path = path }
}

// WithCaller annotates entries with the caller position.
func WithCaller(enabled bool) ZapOption {
	return func(o *zapOptions) { o.caller = enabled }
}

// WithRotate sets the lumberjack rotation parameters, in megabytes and days.
func WithRotate(maxSize, maxAge, maxBackups int, compress bool) ZapOption {
	return func(o *zapOptions) {
		o.maxSize = maxSize
		o.maxAge = maxAge
		o.maxBackups = maxBackups
		o.compress = compress
	}
}

// NewLogger builds the zap-backed Logger.
func NewLogger(opts ...ZapOption) Logger {
	o := &zapOptions{
		level:      LevelInfo,
		maxSize:    100,
		maxAge:     7,
		maxBackups: 3,
	}
	for _, opt := range opts {
		opt(o)
	}

	sink := zapcore.AddSync(os.Stderr)
	if o.path != "" {
		_ = os.MkdirAll(filepath.Dir(o.path), 0o755)
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   o.path,
			MaxSize:    o.maxSize,
			MaxAge:     o.maxAge,
			MaxBackups: o.maxBackups,
			LocalTime:  true,
			Compress:   o.compress,
		})
	}

	level := zap.NewAtomicLevelAt(zapLevel(o.level))

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = ""
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	zopts := []zap.Option{zap.AddStacktrace(zapcore.FatalLevel)}
	if o.caller {
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(3))
	}

	return &zapLogger{
		log:   zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(cfg), sink, level), zopts...),
		level: level,
	}
}

func (l *zapLogger) Log(level Level, keyvals ...any) error {
	if len(keyvals) == 0 {
		return nil
	}
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "")
	}

	var msg string
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if key == DefaultMessageKey {
			msg = fmt.Sprint(keyvals[i+1])
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}

	switch level {
	case LevelDebug:
		l.log.Debug(msg, fields...)
	case LevelInfo:
		l.log.Info(msg, fields...)
	case LevelWarn:
		l.log.Warn(msg, fields...)
	case LevelError:
		l.log.Error(msg, fields...)
	case LevelFatal:
		l.log.Fatal(msg, fields...)
	}
	return nil
}

// Enabled reports whether the underlying core logs at the given level.
func (l *zapLogger) Enabled(level Level) bool {
	return l.level.Enabled(zapLevel(level))
}

// Sync flushes buffered entries.
func (l *zapLogger) Sync() error {
	return l.log.Sync()
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
