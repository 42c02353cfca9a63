package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger with configuration from environment variables.
// EDITOR_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
// EDITOR_LOG_FORMAT=json keeps zerolog's JSON output (Lambda); anything else
// uses the human-readable console writer on stderr.
func Init() {
	Configure(os.Getenv("EDITOR_LOG_LEVEL"), os.Getenv("EDITOR_LOG_FORMAT"))
}

// Configure sets the global level and output format. JSON is always used
// inside Lambda.
func Configure(level, format string) {
	zerolog.SetGlobalLevel(ParseLevel(level))

	if format == "json" || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// MaskKey returns a redacted form of an API key that is safe to log.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-4:]
}
