// Package dlogger builds the zap loggers of the registry tools.
//
// Logs go to stderr: stdout is kept for command results.
package dlogger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	// LogLevelNone disables logging
	LogLevelNone = "none"
)

// Log encodings
const (
	EncodingJSON    = "json"
	EncodingConsole = "console"
)

type options struct {
	encoding string
	outputs  []string
}

// Option configures a logger
type Option func(*options)

// Encoding selects the json (default) or console encoding
func Encoding(encoding string) Option {
	return func(o *options) {
		if encoding != "" {
			o.encoding = encoding
		}
	}
}

// Outputs overrides the sinks logs are written to
func Outputs(paths ...string) Option {
	return func(o *options) {
		if len(paths) > 0 {
			o.outputs = paths
		}
	}
}

// GetLogger returns a zap logger with the specified level
func GetLogger(logLevel string, opts ...Option) (*zap.Logger, error) {
	o := options{encoding: EncodingJSON, outputs: []string{"stderr"}}
	for _, apply := range opts {
		apply(&o)
	}

	logLevel = strings.ToLower(strings.TrimSpace(logLevel))
	if logLevel == LogLevelNone {
		return zap.NewNop(), nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: expected one of %s", logLevel,
			strings.Join([]string{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelNone}, ", "))
	}

	var cfg zap.Config
	switch o.encoding {
	case EncodingJSON:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
	case EncodingConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("log encoding %q: expected %s or %s", o.encoding, EncodingJSON, EncodingConsole)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = o.outputs
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
