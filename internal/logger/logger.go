package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Development gets a human readable console
// writer at debug level, anything else gets JSON at info level.
func New(env string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(env, "DEV") {
		console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
		return zerolog.New(console).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}
