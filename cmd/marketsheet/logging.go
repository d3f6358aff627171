package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

func setupLogging(fs *pflag.FlagSet) error {
	levelName, _ := fs.GetString("log-level")
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelName, err)
	}

	format, _ := fs.GetString("log-format")
	logger, err := newLogger(format, os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
	if err != nil {
		return err
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)
	log.Logger = logger
	return nil
}

// newLogger builds the process logger; colour is only used on a terminal
func newLogger(format string, out io.Writer, tty bool) (zerolog.Logger, error) {
	switch format {
	case "json":
		return zerolog.New(out).With().Timestamp().Logger(), nil
	case "console", "":
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.DateTime,
			NoColor:    !tty,
		}).With().Timestamp().Logger(), nil
	default:
		return zerolog.Logger{}, fmt.Errorf("unsupported log format %q (console|json)", format)
	}
}
