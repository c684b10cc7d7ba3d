package utils

import (
	"io"
	"strings"

	"github.com/pterm/pterm"
)

// Logger is the process-wide structured logger. Components accept their own
// *pterm.Logger and fall back to this one.
var Logger = pterm.DefaultLogger.WithLevel(pterm.LogLevelInfo)

// ParseLogLevel maps a config value onto a pterm level, defaulting to info.
func ParseLogLevel(level string) pterm.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return pterm.LogLevelTrace
	case "debug":
		return pterm.LogLevelDebug
	case "warn", "warning":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	case "off", "disabled", "none":
		return pterm.LogLevelDisabled
	default:
		return pterm.LogLevelInfo
	}
}

// NewLogger builds a logger at the given level writing to w (stderr when nil).
func NewLogger(level string, w io.Writer) *pterm.Logger {
	l := pterm.DefaultLogger.WithLevel(ParseLogLevel(level))
	if w != nil {
		l = l.WithWriter(w)
	}
	return l
}

// SetLogLevel reconfigures the process-wide logger.
func SetLogLevel(level string) {
	Logger = pterm.DefaultLogger.WithLevel(ParseLogLevel(level))
}

// LoggerOr returns l, or the process-wide logger when l is nil.
func LoggerOr(l *pterm.Logger) *pterm.Logger {
	if l != nil {
		return l
	}
	return Logger
}

// QuietLogger discards everything; used by tests.
func QuietLogger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled).WithWriter(io.Discard)
}
