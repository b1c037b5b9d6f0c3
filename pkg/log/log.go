// Copyright 2024 RelayGate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides a minimal leveled logging API backed by zap. All
// relaygate code logs through this package so that the backing logger can
// be replaced wholesale during setup and in tests.
package log

import (
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the log level.
type Level = zapcore.Level

// The log levels supported by the console logger.
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	ErrorLevel = zapcore.ErrorLevel
)

// Config configures the logging backend.
type Config struct {
	Console ConsoleConfig `toml:"console,omitempty"`
}

// InitDefaults populates unset fields with default values.
func (c *Config) InitDefaults() {
	c.Console.InitDefaults()
}

// Validate validates the config.
func (c *Config) Validate() error {
	return c.Console.validate()
}

// ConfigName returns the name this config should have in a config file.
func (c *Config) ConfigName() string {
	return "log"
}

// ConsoleConfig configures the logger that writes to standard error.
type ConsoleConfig struct {
	// Level of console logging (debug, info, error).
	Level string `toml:"level,omitempty"`
	// Format of the console log entries (human, json).
	Format string `toml:"format,omitempty"`
	// DisableCaller stops annotating logs with the calling function's file
	// name and line number.
	DisableCaller bool `toml:"disable_caller,omitempty"`
}

// InitDefaults populates unset fields with default values.
func (c *ConsoleConfig) InitDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "human"
	}
}

func (c *ConsoleConfig) validate() error {
	if _, err := zapcore.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("unsupported log level %q: %w", c.Level, err)
	}
	switch c.Format {
	case "", "human", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Format)
	}
	return nil
}

// Setup configures the package-level root logger. It must be called before
// the root logger is used.
func Setup(cfg Config) error {
	cfg.Console.InitDefaults()
	if err := cfg.Console.validate(); err != nil {
		return err
	}
	zCfg := zap.NewProductionConfig()
	zCfg.Level = zap.NewAtomicLevelAt(mustParseLevel(cfg.Console.Level))
	zCfg.DisableStacktrace = true
	zCfg.DisableCaller = cfg.Console.DisableCaller
	zCfg.Sampling = nil
	zCfg.OutputPaths = []string{"stderr"}
	zCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Console.Format != "json" {
		zCfg.Encoding = "console"
		zCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	logger, err := zCfg.Build()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func mustParseLevel(lvl string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.ToLower(lvl))
	if err != nil {
		panic(err)
	}
	return l
}

// Logger describes the logger interface.
type Logger interface {
	// New returns a child logger with the given key value pairs attached.
	New(ctx ...any) Logger
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	// Enabled returns whether the logger emits entries at the given level.
	Enabled(lvl Level) bool
}

type logger struct {
	logger *zap.Logger
}

// New creates a logger with the given context attached to the root logger.
func New(ctx ...any) Logger {
	return Root().New(ctx...)
}

// Root returns the root logger. It's a logger without any context.
func Root() Logger {
	return &logger{logger: zap.L().WithOptions(zap.AddCallerSkip(1))}
}

// Discard sets the root logger up to discard all log entries. This is
// useful in tests.
func Discard() {
	zap.ReplaceGlobals(zap.NewNop())
}

// Flush writes any buffered log entries.
func Flush() error {
	return zap.L().Sync()
}

func (l *logger) New(ctx ...any) Logger {
	return &logger{logger: l.logger.With(convertCtx(ctx)...)}
}

func (l *logger) Debug(msg string, ctx ...any) {
	l.logger.Debug(msg, convertCtx(ctx)...)
}

func (l *logger) Info(msg string, ctx ...any) {
	l.logger.Info(msg, convertCtx(ctx)...)
}

func (l *logger) Error(msg string, ctx ...any) {
	l.logger.Error(msg, convertCtx(ctx)...)
}

func (l *logger) Enabled(lvl Level) bool {
	return l.logger.Core().Enabled(lvl)
}

// Debug logs at debug level on the root logger.
func Debug(msg string, ctx ...any) {
	Root().Debug(msg, ctx...)
}

// Info logs at info level on the root logger.
func Info(msg string, ctx ...any) {
	Root().Info(msg, ctx...)
}

// Error logs at error level on the root logger.
func Error(msg string, ctx ...any) {
	Root().Error(msg, ctx...)
}

// HandlePanic catches panics and logs them. It should be deferred at the
// start of every application goroutine.
func HandlePanic() {
	if msg := recover(); msg != nil {
		zap.L().Error("Panic", zap.Any("msg", msg),
			zap.ByteString("stack", debug.Stack()))
		_ = zap.L().Sync()
		panic(msg)
	}
}

func convertCtx(ctx []any) []zap.Field {
	fields := make([]zap.Field, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(ctx[i]), ctx[i+1]))
	}
	return fields
}
