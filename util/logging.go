package util

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const LOG_FILE = "bagel.log"

// SetupLogger points the global logger at the console and, when logFile is
// not empty, appends to logFile as well. Every line carries component.
// The returned closer closes the log file.
func SetupLogger(component, level, logFile string) (io.Closer, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}
	var out io.Writer = console
	var closer io.Closer = nopCloser{}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(console, f)
		closer = f
	}

	log.Logger = zerolog.New(out).With().Timestamp().Str("component", component).Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
