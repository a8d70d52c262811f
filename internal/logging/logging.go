// Package logging builds the process zap logger and bridges it into the Temporal SDK.
package logging

import (
	"fmt"
	"strings"

	temporallog "go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger unless env is "development" or "local".
func New(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

type temporalAdapter struct {
	zl *zap.Logger
}

// NewTemporalLogger adapts z to the Temporal SDK logger interface.
func NewTemporalLogger(z *zap.Logger) temporallog.Logger {
	return &temporalAdapter{zl: z.WithOptions(zap.AddCallerSkip(1))}
}

func (a *temporalAdapter) fields(keyvals []any) []zap.Field {
	if len(keyvals)%2 != 0 {
		return []zap.Field{zap.Any("keyvals", keyvals)}
	}
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvals[i])
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	return fields
}

func (a *temporalAdapter) Debug(msg string, keyvals ...any) {
	a.zl.Debug(msg, a.fields(keyvals)...)
}

func (a *temporalAdapter) Info(msg string, keyvals ...any) {
	a.zl.Info(msg, a.fields(keyvals)...)
}

func (a *temporalAdapter) Warn(msg string, keyvals ...any) {
	a.zl.Warn(msg, a.fields(keyvals)...)
}

func (a *temporalAdapter) Error(msg string, keyvals ...any) {
	a.zl.Error(msg, a.fields(keyvals)...)
}

func (a *temporalAdapter) With(keyvals ...any) temporallog.Logger {
	return &temporalAdapter{zl: a.zl.With(a.fields(keyvals)...)}
}
