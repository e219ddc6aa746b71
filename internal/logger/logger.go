// Package logger builds the hclog loggers used across picoscan.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// EnvLogLevel overrides the configured level when set.
const EnvLogLevel = "PICOSCAN_LOG_LEVEL"

// Options controls logger construction.
type Options struct {
	Level      string
	JSONFormat bool
	Output     io.Writer
}

// New creates a named logger. The PICOSCAN_LOG_LEVEL environment variable takes
// precedence over opts.Level; output defaults to stderr so stdout stays free for results.
func New(name string, opts Options) hclog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:        name,
		DisableTime: true,
		JSONFormat:  opts.JSONFormat,
		Output:      out,
		Level:       determineLogLevel(opts.Level),
	})
}

// OrNull returns l, or a logger that discards everything when l is nil.
func OrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}

func determineLogLevel(configured string) hclog.Level {
	if env := os.Getenv(EnvLogLevel); env != "" {
		return ParseLevel(env)
	}
	return ParseLevel(configured)
}

// ParseLevel converts a level name to an hclog.Level, defaulting to INFO.
func ParseLevel(levelStr string) hclog.Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "INFO", "":
		return hclog.Info
	case "WARN":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	default:
		return hclog.Info
	}
}
