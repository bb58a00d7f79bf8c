// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package applog is a thin facade over go.uber.org/zap so that the rest of
// the module never imports zap directly, mirroring the indirection the
// teacher keeps between pkg/application.Lux.Log and the concrete logging
// library wired in cmd/root.go.
package applog

import (
	"go.uber.org/zap"
)

// Logger is the leveled logging interface used throughout the module.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	With(fields ...Field) Logger
}

// Field is a structured logging key/value pair.
type Field = zap.Field

// String, Int and Err re-export zap's field constructors so callers
// don't need a zap import alongside applog.
var (
	String = zap.String
	Int    = zap.Int
	Err    = zap.Error
)

type zapLogger struct {
	base *zap.Logger
}

// New builds a Logger at the given level ("debug", "info", "warn",
// "error"). Unrecognized levels fall back to "info".
func New(level string) Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &zapLogger{base: z}
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() Logger {
	return &zapLogger{base: zap.NewNop()}
}

func (z *zapLogger) Debugf(format string, args ...any) { z.base.Sugar().Debugf(format, args...) }
func (z *zapLogger) Infof(format string, args ...any)  { z.base.Sugar().Infof(format, args...) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.base.Sugar().Warnf(format, args...) }
func (z *zapLogger) Errorf(format string, args ...any) { z.base.Sugar().Errorf(format, args...) }

func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{base: z.base.With(fields...)}
}
