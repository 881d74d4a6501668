// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger configures the zap loggers used throughout the agent.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFormat selects the encoder used for log output.
type LogFormat string

const (
	// FormatJSON emits structured JSON, one object per line.
	FormatJSON LogFormat = "JSON"
	// FormatConsole emits zap's tab separated console format.
	FormatConsole LogFormat = "CONSOLE"
	// FormatPretty emits "[LEVEL] [component] message - k=v" lines.
	FormatPretty LogFormat = "PRETTY"
)

const (
	envLevel  = "LOGGING_LEVEL"
	envFormat = "LOGGING_FORMAT"

	// ProductionLevel is accepted as an alias for INFO.
	ProductionLevel = "PRODUCTION"
)

var (
	initOnce sync.Once
	atomLvl  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// ParseLevel converts a level name into a zapcore.Level. Unknown names map to INFO.
func ParseLevel(level string) zapcore.Level {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == ProductionLevel || level == "" {
		return zapcore.InfoLevel
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}

	return lvl
}

// ParseFormat converts a format name into a LogFormat, falling back to def.
func ParseFormat(format string, def LogFormat) LogFormat {
	switch f := LogFormat(strings.ToUpper(strings.TrimSpace(format))); f {
	case FormatJSON, FormatConsole, FormatPretty:
		return f
	default:
		return def
	}
}

func encoderConfig(format LogFormat) zapcore.EncoderConfig {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
	}

	if format != FormatJSON {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05 MST")
		cfg.ConsoleSeparator = " | "
	}

	return cfg
}

// New builds a logger writing to stdout at the given level and format.
func New(level string, format LogFormat) *zap.Logger {
	return build(zap.NewAtomicLevelAt(ParseLevel(level)), format)
}

func build(lvl zap.AtomicLevel, format LogFormat) *zap.Logger {
	cfg := encoderConfig(format)

	var enc zapcore.Encoder

	switch format {
	case FormatPretty:
		enc = NewPrettyConsoleEncoder(cfg)
	case FormatConsole:
		enc = zapcore.NewConsoleEncoder(cfg)
	default:
		enc = zapcore.NewJSONEncoder(cfg)
	}

	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), lvl), zap.AddCaller())
}

// Initialize replaces the zap globals with a logger configured from
// LOGGING_LEVEL and LOGGING_FORMAT. Subsequent calls are no-ops.
func Initialize() {
	initOnce.Do(func() {
		level := os.Getenv(envLevel)
		format := ParseFormat(os.Getenv(envFormat), FormatPretty)

		atomLvl.SetLevel(ParseLevel(level))

		l := build(atomLvl, format)
		zap.ReplaceGlobals(l)
		l.Info("Logger initialized", zap.String("level", ParseLevel(level).CapitalString()), zap.String("format", string(format)))
	})
}

// SetLevel changes the level of the global logger at runtime.
func SetLevel(level string) {
	atomLvl.SetLevel(ParseLevel(level))
}

// Level returns the current level of the global logger.
func Level() zapcore.Level {
	return atomLvl.Level()
}

// For returns a sugared logger named after the component.
func For(component string) *zap.SugaredLogger {
	Initialize()

	return zap.S().Named(component)
}

// Sync flushes any buffered log entries of the global logger.
func Sync() error {
	return zap.L().Sync()
}
