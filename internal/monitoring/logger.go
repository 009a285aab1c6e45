package monitoring

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, pretty
}

// NewLogger creates the structured logger used by every component.
//
// Output is JSON by default (log-aggregator friendly); "pretty" switches
// to the human-readable console writer for local development.
func NewLogger(config LoggerConfig) zerolog.Logger {
	var output io.Writer = os.Stdout

	var level zerolog.Level
	switch config.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.Format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Str("service", "chatd").
		Logger()
}

var safeMode atomic.Bool

// SetSafeMode toggles redaction of addresses and error detail in all log
// output. Called once at startup from the loaded configuration.
func SetSafeMode(enabled bool) {
	safeMode.Store(enabled)
}

// Sensitive returns its argument unless safe mode is enabled, in which
// case a fixed redaction marker is returned instead. Every remote address
// and error string that reaches a log line goes through this helper.
func Sensitive(v string) string {
	if safeMode.Load() {
		return "[REDACTED]"
	}
	return v
}

// SensitiveErr is Sensitive for error values.
func SensitiveErr(err error) string {
	if err == nil {
		return ""
	}
	return Sensitive(err.Error())
}
