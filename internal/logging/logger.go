// Package logging provides the process-wide structured logger. Records are
// emitted as JSON by default so they can be ingested by the platform log
// pipeline; console output is available for local development.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the root logger.
type Options struct {
	// AppName appears as the "application" field on every record.
	AppName string
	// Level is the minimum level to emit (trace, debug, info, warn, error).
	Level string
	// Text switches from JSON records to human-readable console output.
	Text bool
	// Writer overrides the output stream. Defaults to stdout.
	Writer io.Writer
}

var root atomic.Pointer[zerolog.Logger]

func init() {
	// A usable default until Init runs, so library consumers that never
	// call Init still get output.
	l := zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	root.Store(&l)
}

// Init builds the root logger. Safe to call more than once; the last call
// wins.
func Init(opt Options) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Text {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
	if opt.AppName != "" {
		ctx = ctx.Str("application", opt.AppName)
	}
	l := ctx.Logger()
	root.Store(&l)
}

// Get returns the process-wide root logger.
func Get() *zerolog.Logger {
	return root.Load()
}

// With returns a child logger carrying the given component name.
func With(component string) zerolog.Logger {
	return root.Load().With().Str("component", component).Logger()
}

// Redact replaces a credential value with a placeholder for logging. Tokens
// must never reach the log stream, not even truncated: operators only need
// to know whether one was present.
func Redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "<redacted>"
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
