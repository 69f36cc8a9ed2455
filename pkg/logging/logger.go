// Package logging configures zerolog for the search client, the proxy and
// the shells.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelDisabled turns logging off. The console shell uses it so log
	// lines do not interleave with its output.
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog.Level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: step-by-step flow
//   - Cache hits and writes (ttl)
//   - Fetch start and drop of cancelled or stale results (fetch_id, token)
//   - Ignored RequestMore / RetryMore calls (phase)
//   - Retry backoff waits
//
// Info: normal operation
//   - Query executed by the pagination controller
//   - Successful request after retry
//   - Server startup/shutdown
//
// Warn: degraded but working
//   - Quota nearly used up (throttling active)
//   - Cache or quota store errors (request continues)
//   - Failed fetches surfaced to the shell
//   - Circuit breaker state changes
//
// Error: needs attention
//   - Network failures
//   - Quota used up (requests blocked)
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (flickr-client, pagination, quota, search-proxy)
//   - query / text: search text
//   - page, pages, per_page: pagination position
//   - phase: controller phase
//   - token: controller request token
//   - fetch_id: uuid of an asynchronous fetch
//   - status: HTTP status code
//   - error_class: client, server, network, api, malformed, canceled
//   - duration, ttl, backoff
