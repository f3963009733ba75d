// ABOUTME: This file provides the slog-based JSON logger shared by all components
// ABOUTME: Normalizes field names and lowercases levels for the log pipeline
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New builds the service logger. Output is single-line JSON with lowercase
// levels so downstream collectors can parse it without remapping.
func New(serviceName, level string) *slog.Logger {
	options := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: false,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "time", Value: a.Value}
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					return slog.Attr{Key: "level", Value: slog.StringValue(strings.ToLower(lvl.String()))}
				}
				return a
			case slog.MessageKey:
				return slog.Attr{Key: "msg", Value: a.Value}
			default:
				return a
			}
		},
	}

	handler := slog.NewJSONHandler(os.Stdout, options)
	return slog.New(handler).With("service", serviceName)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
