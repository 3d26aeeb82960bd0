package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the log sink. File is optional; when set, log lines are
// written to stdout and to a size-rotated file.
type Options struct {
	Service    string
	Env        string
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup configures the standard library logger to emit structured JSON and returns
// the underlying slog.Logger for richer logging within the service. All log lines
// include the service name and environment when provided.
func Setup(service, env string) *slog.Logger {
	return SetupWithOptions(Options{Service: service, Env: env})
}

// SetupWithOptions is Setup with level and file rotation control.
func SetupWithOptions(opts Options) *slog.Logger {
	var out io.Writer = os.Stdout
	if file := strings.TrimSpace(opts.File); file != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}
	return setup(out, opts)
}

func setup(out io.Writer, opts Options) *slog.Logger {
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		AddSource: false,
		Level:     ParseLevel(opts.Level),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			}
			if attr.Key == slog.LevelKey {
				level := strings.ToUpper(attr.Value.String())
				return slog.String("severity", level)
			}
			if attr.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(opts.Service)),
	}
	if env := strings.TrimSpace(opts.Env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// ParseLevel maps a textual level to slog's levels. Unknown values fall back
// to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// RedactedValue replaces the value of masked log fields.
const RedactedValue = "[REDACTED]"

// plainKeys are the log keys that carry public ledger data and are emitted
// as is. Everything else passed through MaskField is redacted.
var plainKeys = map[string]struct{}{
	"listing": {},
	"seller":  {},
	"buyer":   {},
	"asset":   {},
	"price":   {},
	"txhash":  {},
	"method":  {},
	"error":   {},
}

// MaskField returns key with value redacted unless key is a public ledger
// field. Blank values pass through unchanged.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	if _, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
