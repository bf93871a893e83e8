// Package logging provides the process-wide zerolog root logger with
// console-friendly defaults and per-component child loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	root zerolog.Logger
)

// Init configures the root logger. Safe to call more than once; only the
// first call wins.
func Init(level string, w io.Writer) {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		if w == nil {
			w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		}
		root = zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	})
}

// For returns a child logger tagged with a component name, e.g. "content"
// or "pipeline". Components show up as a field on every line.
func For(component string) zerolog.Logger {
	Init("info", nil)
	return root.With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
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
