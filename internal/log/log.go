// Package log builds the zerolog diagnostics sink handed to every component.
// Nothing in icsanon logs through a package-level logger; callers construct
// one here and pass it down.
package log

import (
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// LevelFromVerbosity maps a repeated -v counter onto a level:
// 0 → WARN, 1 → INFO, 2+ → DEBUG.
func LevelFromVerbosity(v int) Level {
	switch {
	case v >= 2:
		return LevelDebug
	case v == 1:
		return LevelInfo
	default:
		return LevelWarn
	}
}

// ParseLevel accepts the textual names used in config files. Unknown names
// fall back to WARN.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "ERROR":
		return LevelError
	default:
		return LevelWarn
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}

// New returns a logger writing human-readable lines to w, filtered at level.
func New(w io.Writer, level Level) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	return zerolog.New(out).Level(level.zerolog()).With().Timestamp().Logger()
}

// NewJSON is like New but emits one JSON object per line, for log shippers.
func NewJSON(w io.Writer, level Level) zerolog.Logger {
	return zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger()
}

// RedactURL hides everything after the host of a feed URL. Private
// calendar feeds carry their access token in the path or query.
//
//	https://example.com/private/abc.ics?token=x -> https://example.com/...(redacted)
func RedactURL(raw string) string {
	const redactedSuffix = "/...(redacted)"

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + redactedSuffix
}
