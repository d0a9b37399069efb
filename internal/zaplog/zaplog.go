// Package zaplog adapts a zap logger to the underwriter Logger interface.
package zaplog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/suyash-sneo/underwriter"
)

// Logger forwards underwriter log calls to zap.
type Logger struct {
	lg *zap.Logger
}

// New wraps lg. A nil lg yields a no-op logger.
func New(lg *zap.Logger) *Logger {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Logger{lg: lg}
}

// NewDevelopment builds a console logger at debug level when verbose, info
// otherwise.
func NewDevelopment(verbose bool) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}
	lg, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(lg), nil
}

// Zap returns the wrapped logger.
func (l *Logger) Zap() *zap.Logger { return l.lg }

// Sync flushes buffered entries.
func (l *Logger) Sync() error { return l.lg.Sync() }

func (l *Logger) Debug(msg string, fields ...underwriter.Field) { l.lg.Debug(msg, convert(fields)...) }
func (l *Logger) Info(msg string, fields ...underwriter.Field)  { l.lg.Info(msg, convert(fields)...) }
func (l *Logger) Warn(msg string, fields ...underwriter.Field)  { l.lg.Warn(msg, convert(fields)...) }
func (l *Logger) Error(msg string, fields ...underwriter.Field) { l.lg.Error(msg, convert(fields)...) }

func convert(fields []underwriter.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
